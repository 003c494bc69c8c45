// Package transition moves merchants between lifecycle stages. Previews are read-only;
// executes re-validate inside a transaction that holds the merchant row lock.
package transition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
)

// Store is the read side plus the transaction entry point.
type Store interface {
	readiness.ImplementationReader
	GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error)
	// GetScopeDocument returns nil without error when the merchant has no document.
	GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error)
	ListTransitions(ctx context.Context, merchantID string) ([]domain.StageTransition, error)
	// InTransitionTx commits when fn returns nil and rolls back otherwise.
	InTransitionTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is everything an execute may touch while it holds the merchant lock. Catalog
// reads go through the transaction too, so an execute never needs a second
// connection while it holds the first.
type Tx interface {
	readiness.ImplementationReader
	platform.Catalog
	audit.Writer
	// LockMerchant returns domain.ErrMerchantLocked if another transaction holds the row.
	LockMerchant(ctx context.Context, merchantID string) (domain.Merchant, error)
	GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error)
	// UpdateMerchantStage returns domain.ErrStageChanged unless the row is still in from.
	UpdateMerchantStage(ctx context.Context, merchantID string, from, to domain.Stage) (domain.Merchant, error)
	// Insert methods skip rows that already exist and report how many were created.
	InsertPspImplementations(ctx context.Context, rows []domain.MerchantPspImplementation) (int, error)
	InsertPaymentMethodImplementations(ctx context.Context, rows []domain.MerchantPaymentMethodImplementation) (int, error)
	InsertStageTransition(ctx context.Context, st domain.StageTransition) error
}

type Orchestrator struct {
	store   Store
	catalog platform.Catalog
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(store Store, catalog platform.Catalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		catalog: catalog,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ConflictReason string

const (
	ConflictConcurrent   ConflictReason = "concurrent"
	ConflictStageChanged ConflictReason = "stage_changed"
)

// ConflictError means nothing was written and the caller should re-fetch and retry.
type ConflictError struct {
	MerchantID   string
	Reason       ConflictReason
	CurrentStage domain.Stage
	Expected     domain.Stage
}

func (e *ConflictError) Error() string {
	if e.Reason == ConflictStageChanged {
		if e.CurrentStage == "" {
			return fmt.Sprintf("merchant %s is no longer in %s", e.MerchantID, e.Expected)
		}
		return fmt.Sprintf("merchant %s is in %s, expected %s", e.MerchantID, e.CurrentStage, e.Expected)
	}
	return fmt.Sprintf("merchant %s has a transition in flight", e.MerchantID)
}

type TransitionPreviewResult struct {
	CanTransition bool                       `json:"can_transition"`
	FromStage     domain.Stage               `json:"from_stage"`
	ToStage       domain.Stage               `json:"to_stage"`
	CurrentStage  domain.Stage               `json:"current_stage"`
	Errors        []string                   `json:"errors"`
	Warnings      []domain.TransitionWarning `json:"warnings"`
}

type TransitionToImplementingInput struct {
	MerchantID           string
	Actor                domain.Actor
	UserFeedback         string
	AcknowledgedWarnings []domain.TransitionWarning
}

type TransitionToLiveInput struct {
	MerchantID   string
	Actor        domain.Actor
	UserFeedback string
}

// TransitionResult is returned for both approved and rejected attempts. Rejections
// carry Success=false and a RejectionCode; they are not errors.
type TransitionResult struct {
	Success                             bool                       `json:"success"`
	TransitionID                        string                     `json:"transition_id"`
	FromStage                           domain.Stage               `json:"from_stage"`
	ToStage                             domain.Stage               `json:"to_stage"`
	Errors                              []string                   `json:"errors"`
	Warnings                            []domain.TransitionWarning `json:"warnings"`
	UnacknowledgedWarnings              []domain.TransitionWarning `json:"unacknowledged_warnings"`
	RejectionCode                       domain.RejectionCode       `json:"rejection_code,omitempty"`
	RejectionReason                     string                     `json:"rejection_reason,omitempty"`
	PspImplementationsCreated           int                        `json:"psp_implementations_created"`
	PaymentMethodImplementationsCreated int                        `json:"payment_method_implementations_created"`
}

func (o *Orchestrator) ListTransitions(ctx context.Context, merchantID string) ([]domain.StageTransition, error) {
	if _, err := o.store.GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}
	return o.store.ListTransitions(ctx, merchantID)
}
