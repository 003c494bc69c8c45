// Package httpx holds the JSON envelope and request-id plumbing shared by the
// HTTP surfaces.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

const maxInboundRequestID = 128

func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID assigns every request an id, reusing a caller-supplied X-Request-Id
// when it is sane. The id is echoed on the response and stored where chi's
// middleware.GetReqID finds it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > maxInboundRequestID {
			id = NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResponseRequestID returns the id RequestID put on w, or a fresh one when the
// middleware did not run.
func ResponseRequestID(w http.ResponseWriter) string {
	if id := w.Header().Get(HeaderRequestID); id != "" {
		return id
	}
	return NewRequestID()
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ReadOptionalJSON behaves like ReadJSON but accepts an empty body.
func ReadOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := ReadJSON(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, map[string]any{
		"request_id": ResponseRequestID(w),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	})
}
