package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/pkg/httpx"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/scope"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

func respond(w http.ResponseWriter, status int, key string, v any) {
	httpx.WriteJSON(w, status, map[string]any{"request_id": httpx.ResponseRequestID(w), key: v})
}

// decode reads an optional JSON body. It writes the error response itself and
// reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.ReadOptionalJSON(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErr(w, r, err)
			return false
		}
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return false
	}
	return true
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func actor(r *http.Request) domain.Actor {
	if id, ok := authn.FromContext(r.Context()); ok {
		return id.Actor
	}
	return domain.Actor{}
}

func (s *Server) createMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                string `json:"name"`
		ContactEmail        string `json:"contact_email"`
		ContactName         string `json:"contact_name"`
		SalesOwner          string `json:"sales_owner"`
		ImplementationOwner string `json:"implementation_owner"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.backend.CreateMerchant(r.Context(), domain.Merchant{
		Name:                strings.TrimSpace(req.Name),
		ContactEmail:        strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		ContactName:         strings.TrimSpace(req.ContactName),
		SalesOwner:          strings.TrimSpace(req.SalesOwner),
		ImplementationOwner: strings.TrimSpace(req.ImplementationOwner),
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 201, "merchant", m)
}

// getMerchant returns the merchant with both readiness views, loaded concurrently.
func (s *Server) getMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID := pathParam(r, "merchant_id")
	m, err := s.backend.GetMerchant(r.Context(), merchantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var doc *domain.ScopeDocument
	var impl readiness.ImplementationReadinessResult
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		doc, err = s.backend.GetScopeDocument(ctx, merchantID)
		return err
	})
	g.Go(func() error {
		var err error
		impl, err = s.impl.Calculate(ctx, merchantID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeErr(w, r, err)
		return
	}

	statuses := domain.AllMissing()
	if doc != nil {
		statuses = doc.Statuses
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":               httpx.ResponseRequestID(w),
		"merchant":                 m,
		"scope":                    doc,
		"scope_readiness":          readiness.CalculateScopeReadiness(statuses),
		"implementation_readiness": impl,
	})
}

func (s *Server) getScopeReadiness(w http.ResponseWriter, r *http.Request) {
	merchantID := pathParam(r, "merchant_id")
	if _, err := s.backend.GetMerchant(r.Context(), merchantID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	doc, err := s.backend.GetScopeDocument(r.Context(), merchantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	statuses := domain.AllMissing()
	if doc != nil {
		statuses = doc.Statuses
	}
	respond(w, 200, "readiness", readiness.CalculateScopeReadiness(statuses))
}

func (s *Server) getImplementationReadiness(w http.ResponseWriter, r *http.Request) {
	merchantID := pathParam(r, "merchant_id")
	if _, err := s.backend.GetMerchant(r.Context(), merchantID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.impl.Calculate(r.Context(), merchantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "readiness", res)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	out, err := s.orchestrator.ListTransitions(r.Context(), pathParam(r, "merchant_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "transitions", out)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	merchantID := pathParam(r, "merchant_id")
	if _, err := s.backend.GetMerchant(r.Context(), merchantID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	out, err := s.backend.ListAuditLog(r.Context(), merchantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "entries", out)
}

func (s *Server) previewImplementing(w http.ResponseWriter, r *http.Request) {
	res, err := s.orchestrator.PreviewTransitionToImplementing(r.Context(), pathParam(r, "merchant_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "preview", res)
}

func (s *Server) previewLive(w http.ResponseWriter, r *http.Request) {
	res, err := s.orchestrator.PreviewTransitionToLive(r.Context(), pathParam(r, "merchant_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "preview", res)
}

func (s *Server) supportCheck(w http.ResponseWriter, r *http.Request) {
	var req platform.SupportRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.orchestrator.CheckSupport(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "support", res)
}

func (s *Server) transitionImplementing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserFeedback         string                     `json:"user_feedback"`
		AcknowledgedWarnings []domain.TransitionWarning `json:"acknowledged_warnings"`
	}
	s.execute(w, r, "POST /nexus/v1/merchants/{merchant_id}/transitions/implementing", &req, func(merchantID string, a domain.Actor) (transition.TransitionResult, error) {
		return s.orchestrator.TransitionToImplementing(r.Context(), transition.TransitionToImplementingInput{
			MerchantID:           merchantID,
			Actor:                a,
			UserFeedback:         strings.TrimSpace(req.UserFeedback),
			AcknowledgedWarnings: req.AcknowledgedWarnings,
		})
	})
}

func (s *Server) transitionLive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserFeedback string `json:"user_feedback"`
	}
	s.execute(w, r, "POST /nexus/v1/merchants/{merchant_id}/transitions/live", &req, func(merchantID string, a domain.Actor) (transition.TransitionResult, error) {
		return s.orchestrator.TransitionToLive(r.Context(), transition.TransitionToLiveInput{
			MerchantID:   merchantID,
			Actor:        a,
			UserFeedback: strings.TrimSpace(req.UserFeedback),
		})
	})
}

// execute runs a transition behind the Idempotency-Key replay. Approved and rejected
// outcomes are stored for replay; conflicts and failures are not, so a retry can
// still succeed.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, endpoint string, dst any, run func(merchantID string, a domain.Actor) (transition.TransitionResult, error)) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
	}

	merchantID := pathParam(r, "merchant_id")
	a := actor(r)
	ac := idempotency.ActorContext{ActorID: a.ID, IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key"))}
	fingerprint := idempotency.Fingerprint(merchantID, raw)

	rec, found, err := idempotency.Replay(r.Context(), s.backend, ac, endpoint, fingerprint)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if found {
		w.Header().Set("content-type", "application/json")
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
		return
	}

	res, err := run(merchantID, a)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	status, body := transitionResponse(httpx.ResponseRequestID(w), res)
	if err := idempotency.Save(r.Context(), s.backend, ac, endpoint, fingerprint, status, body); err != nil {
		s.log.Warn("store idempotency record", "endpoint", endpoint, "err", err)
	}
	httpx.WriteJSON(w, status, body)
}

func transitionResponse(requestID string, res transition.TransitionResult) (int, map[string]any) {
	if res.Success {
		return 200, map[string]any{"request_id": requestID, "result": res}
	}
	status, code := rejectionStatus(res.RejectionCode)
	return status, map[string]any{
		"request_id": requestID,
		"error": map[string]any{
			"code":    code,
			"message": res.RejectionReason,
			"details": res,
		},
	}
}

func (s *Server) applyScope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceType string              `json:"source_type"`
		SourceID   string              `json:"source_id"`
		Reason     string              `json:"reason"`
		Updates    []scope.FieldUpdate `json:"updates"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.applicator.Apply(r.Context(), scope.ApplyInput{
		MerchantID: pathParam(r, "merchant_id"),
		Actor:      actor(r),
		SourceType: strings.TrimSpace(req.SourceType),
		SourceID:   strings.TrimSpace(req.SourceID),
		Reason:     strings.TrimSpace(req.Reason),
		Updates:    req.Updates,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	status := 200
	if res.Created {
		status = 201
	}
	respond(w, status, "result", res)
}

func (s *Server) updatePsp(w http.ResponseWriter, r *http.Request) {
	var u domain.StatusUpdate
	if !s.decode(w, r, &u) {
		return
	}
	row, err := s.tracker.UpdatePsp(r.Context(), pathParam(r, "merchant_id"), pathParam(r, "processor_id"), u, actor(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "implementation", row)
}

func (s *Server) updatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var u domain.StatusUpdate
	if !s.decode(w, r, &u) {
		return
	}
	row, err := s.tracker.UpdatePaymentMethod(r.Context(), pathParam(r, "merchant_id"), pathParam(r, "payment_method"), u, actor(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	respond(w, 200, "implementation", row)
}
