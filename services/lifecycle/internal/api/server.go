// Package api exposes the lifecycle operations over HTTP under /nexus/v1.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/pkg/httpx"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/implementation"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/scope"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

// Backend is everything the handlers need from persistence. Both the Postgres store
// and the in-memory store satisfy it.
type Backend interface {
	transition.Store
	scope.Store
	implementation.Store
	platform.Catalog
	authn.CredentialStore
	authn.FailureRecorder
	idempotency.Store

	CreateMerchant(ctx context.Context, m domain.Merchant) (domain.Merchant, error)
	ListAuditLog(ctx context.Context, merchantID string) ([]domain.AuditLogEntry, error)
}

const defaultMaxBodyBytes = 1 << 20

type Server struct {
	backend      Backend
	orchestrator *transition.Orchestrator
	applicator   *scope.Applicator
	tracker      *implementation.Tracker
	impl         *readiness.ImplementationCalculator
	log          *slog.Logger
	maxBodyBytes int64
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend:      b,
		applicator:   scope.NewApplicator(b),
		tracker:      implementation.NewTracker(b),
		impl:         readiness.NewImplementationCalculator(b),
		log:          slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orchestrator = transition.NewOrchestrator(b, b, transition.WithLogger(s.log))
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/nexus/v1", func(api chi.Router) {
		api.Use(s.limitBody)

		read := api.With(s.requireScope(authn.ScopeRead))
		read.Get("/merchants/{merchant_id}", s.getMerchant)
		read.Get("/merchants/{merchant_id}/readiness/scope", s.getScopeReadiness)
		read.Get("/merchants/{merchant_id}/readiness/implementation", s.getImplementationReadiness)
		read.Get("/merchants/{merchant_id}/transitions", s.listTransitions)
		read.Get("/merchants/{merchant_id}/audit", s.listAudit)
		read.Post("/merchants/{merchant_id}/transitions/implementing:preview", s.previewImplementing)
		read.Post("/merchants/{merchant_id}/transitions/live:preview", s.previewLive)
		read.Post("/platform/support-check", s.supportCheck)

		move := api.With(s.requireScope(authn.ScopeTransition))
		move.Post("/merchants/{merchant_id}/transitions/implementing", s.transitionImplementing)
		move.Post("/merchants/{merchant_id}/transitions/live", s.transitionLive)

		write := api.With(s.requireScope(authn.ScopeWriteScope))
		write.Post("/merchants", s.createMerchant)
		write.Patch("/merchants/{merchant_id}/scope", s.applyScope)

		impl := api.With(s.requireScope(authn.ScopeImplementation))
		impl.Patch("/merchants/{merchant_id}/implementations/psps/{processor_id}", s.updatePsp)
		impl.Patch("/merchants/{merchant_id}/implementations/payment-methods/{payment_method}", s.updatePaymentMethod)
	})
	return r
}

func (s *Server) requireScope(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.Method + " " + r.URL.Path
			id, err := authn.Authenticate(r.Context(), s.backend, r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, authn.ErrUnauthorized) {
					s.log.Error("credential lookup failed", "err", err)
					httpx.WriteError(w, 500, "DB_ERROR", "credential lookup failed", nil)
					return
				}
				s.backend.RecordAuthFailure(r.Context(), endpoint, "", "invalid or missing bearer token")
				httpx.WriteError(w, 401, "UNAUTHORIZED", "operator bearer token required", nil)
				return
			}
			if !authn.HasScope(id.Scopes, required) {
				s.backend.RecordAuthFailure(r.Context(), endpoint, id.Actor.ID, "missing scope "+required)
				httpx.WriteError(w, 403, "FORBIDDEN", "credential lacks scope "+required, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(authn.WithIdentity(r.Context(), id)))
		})
	}
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/health" {
			return
		}
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
