package api

import (
	"errors"
	"net/http"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/pkg/httpx"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

// writeErr maps service errors onto the httpx error envelope.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	var ce *transition.ConflictError
	var tooLarge *http.MaxBytesError
	var invalid *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, 400, "BAD_REQUEST", ve.Message, map[string]any{"field": ve.Field})
	case errors.Is(err, domain.ErrMerchantNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", "merchant not found", nil)
	case errors.Is(err, domain.ErrImplementationNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", "implementation row not found", nil)
	case errors.As(err, &invalid):
		httpx.WriteError(w, 422, string(domain.RejectionValidationFailed), invalid.Error(), map[string]any{
			"current_stage": invalid.From,
			"to_stage":      invalid.To,
		})
	case errors.As(err, &ce):
		httpx.WriteError(w, 409, "TRANSITION_CONFLICT", ce.Error(), map[string]any{
			"reason":        ce.Reason,
			"current_stage": ce.CurrentStage,
		})
	case errors.Is(err, idempotency.ErrKeyReused):
		httpx.WriteError(w, 409, "IDEMPOTENCY_CONFLICT", err.Error(), nil)
	case errors.As(err, &tooLarge):
		httpx.WriteError(w, 413, "BAD_REQUEST", "request body too large", nil)
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
	}
}

// rejectionStatus picks the HTTP status for a committed rejection.
func rejectionStatus(code domain.RejectionCode) (int, string) {
	if code == domain.RejectionWarningsNotAcknowledged {
		return 409, string(code)
	}
	return 422, string(domain.RejectionValidationFailed)
}
