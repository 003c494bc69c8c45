package transition

import (
	"context"
	"fmt"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
)

// stateReader is satisfied by both Store and Tx so preview and execute share one
// validation path.
type stateReader interface {
	readiness.ImplementationReader
	GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error)
}

type evaluation struct {
	errors   []string
	warnings []domain.TransitionWarning
	// scope is nil only for a LIVE transition of a merchant without a document.
	scope   *domain.ScopeDocument
	support platform.SupportResult
}

func (o *Orchestrator) PreviewTransitionToImplementing(ctx context.Context, merchantID string) (TransitionPreviewResult, error) {
	return o.preview(ctx, merchantID, domain.StageImplementing)
}

func (o *Orchestrator) PreviewTransitionToLive(ctx context.Context, merchantID string) (TransitionPreviewResult, error) {
	return o.preview(ctx, merchantID, domain.StageLive)
}

func (o *Orchestrator) preview(ctx context.Context, merchantID string, to domain.Stage) (TransitionPreviewResult, error) {
	from, _ := domain.PreviousStage(to)
	m, err := o.store.GetMerchant(ctx, merchantID)
	if err != nil {
		return TransitionPreviewResult{}, err
	}
	res := TransitionPreviewResult{
		FromStage:    from,
		ToStage:      to,
		CurrentStage: m.LifecycleStage,
		Errors:       []string{},
		Warnings:     []domain.TransitionWarning{},
	}
	if err := domain.ValidateTransition(m.LifecycleStage, to); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	ev, err := o.evaluate(ctx, o.store, o.catalog, merchantID, to)
	if err != nil {
		return TransitionPreviewResult{}, fmt.Errorf("preview %s: %w", to, err)
	}
	res.Errors = ev.errors
	res.Warnings = ev.warnings
	res.CanTransition = len(ev.errors) == 0
	return res, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, r stateReader, catalog platform.Catalog, merchantID string, to domain.Stage) (evaluation, error) {
	doc, err := r.GetScopeDocument(ctx, merchantID)
	if err != nil {
		return evaluation{}, fmt.Errorf("load scope: %w", err)
	}
	switch to {
	case domain.StageImplementing:
		if doc == nil {
			empty := domain.NewScopeDocument(merchantID)
			doc = &empty
		}
		return evaluateImplementing(ctx, platform.NewChecker(catalog), doc)
	case domain.StageLive:
		psps, err := r.ListPspImplementations(ctx, merchantID)
		if err != nil {
			return evaluation{}, fmt.Errorf("load psp implementations: %w", err)
		}
		methods, err := r.ListPaymentMethodImplementations(ctx, merchantID)
		if err != nil {
			return evaluation{}, fmt.Errorf("load payment method implementations: %w", err)
		}
		ev := evaluateLive(psps, methods)
		ev.scope = doc
		return ev, nil
	}
	return evaluation{}, fmt.Errorf("no validation defined for stage %s", to)
}

// evaluateImplementing only consults the catalog once every critical field is present.
func evaluateImplementing(ctx context.Context, checker *platform.Checker, doc *domain.ScopeDocument) (evaluation, error) {
	ev := evaluation{errors: []string{}, warnings: []domain.TransitionWarning{}, scope: doc}
	sr := readiness.CalculateScopeReadiness(doc.Statuses)
	if !sr.CriticalFieldsReady {
		for _, f := range sr.MissingCriticalFields {
			ev.errors = append(ev.errors, "Missing required field: "+f.Label())
		}
		return ev, nil
	}
	support, err := checker.Check(ctx, platform.SupportRequest{Psps: doc.Psps, PaymentMethods: doc.PaymentMethods})
	if err != nil {
		return evaluation{}, fmt.Errorf("platform support: %w", err)
	}
	ev.support = support
	ev.warnings = support.Warnings
	return ev, nil
}

func evaluateLive(psps []domain.MerchantPspImplementation, methods []domain.MerchantPaymentMethodImplementation) evaluation {
	ev := evaluation{errors: []string{}, warnings: []domain.TransitionWarning{}}
	res := readiness.ScoreImplementations(psps, methods)
	for _, b := range res.BlockingItems.Psps {
		ev.errors = append(ev.errors, blockingMessage("PSP", b))
	}
	for _, b := range res.BlockingItems.PaymentMethods {
		ev.errors = append(ev.errors, blockingMessage("Payment method", b))
	}
	return ev
}

func blockingMessage(kind string, b readiness.BlockingItem) string {
	if b.Reason != "" {
		return fmt.Sprintf("%s %s is %s: %s", kind, b.ID, b.Status, b.Reason)
	}
	return fmt.Sprintf("%s %s is %s", kind, b.ID, b.Status)
}
