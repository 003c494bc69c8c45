package readiness

import (
	"context"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type ItemStats struct {
	Total       int `json:"total"`
	Live        int `json:"live"`
	NotRequired int `json:"not_required"`
	InProgress  int `json:"in_progress"`
	Pending     int `json:"pending"`
	Blocked     int `json:"blocked"`
}

func (s *ItemStats) add(st domain.ImplementationStatus) {
	s.Total++
	switch st {
	case domain.ImplLive:
		s.Live++
	case domain.ImplNotRequired:
		s.NotRequired++
	case domain.ImplInProgress:
		s.InProgress++
	case domain.ImplBlocked:
		s.Blocked++
	default:
		s.Pending++
	}
}

type BlockingItem struct {
	ID     string                      `json:"id"`
	Status domain.ImplementationStatus `json:"status"`
	Reason string                      `json:"reason,omitempty"`
}

type BlockingItems struct {
	Psps           []BlockingItem `json:"psps"`
	PaymentMethods []BlockingItem `json:"payment_methods"`
}

func (b BlockingItems) Empty() bool { return len(b.Psps) == 0 && len(b.PaymentMethods) == 0 }

type ImplementationReadinessResult struct {
	Score              int           `json:"score"`
	PspStats           ItemStats     `json:"psp_stats"`
	PaymentMethodStats ItemStats     `json:"payment_method_stats"`
	IsComplete         bool          `json:"is_complete"`
	BlockingItems      BlockingItems `json:"blocking_items"`
}

// ImplementationReader is the read-only store surface the calculator needs.
type ImplementationReader interface {
	ListPspImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPspImplementation, error)
	ListPaymentMethodImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error)
}

type ImplementationCalculator struct {
	store ImplementationReader
}

func NewImplementationCalculator(store ImplementationReader) *ImplementationCalculator {
	return &ImplementationCalculator{store: store}
}

// Calculate loads the merchant's implementation rows and scores them. Store errors are
// returned untouched.
func (c *ImplementationCalculator) Calculate(ctx context.Context, merchantID string) (ImplementationReadinessResult, error) {
	psps, err := c.store.ListPspImplementations(ctx, merchantID)
	if err != nil {
		return ImplementationReadinessResult{}, err
	}
	methods, err := c.store.ListPaymentMethodImplementations(ctx, merchantID)
	if err != nil {
		return ImplementationReadinessResult{}, err
	}
	return ScoreImplementations(psps, methods), nil
}

// ScoreImplementations is the pure scoring step. With no rows at all the merchant is
// vacuously complete.
func ScoreImplementations(psps []domain.MerchantPspImplementation, methods []domain.MerchantPaymentMethodImplementation) ImplementationReadinessResult {
	res := ImplementationReadinessResult{
		BlockingItems: BlockingItems{Psps: []BlockingItem{}, PaymentMethods: []BlockingItem{}},
	}
	total := 0
	for _, p := range psps {
		res.PspStats.add(p.Status)
		total += p.Status.Weight()
		if !p.Status.Resolved() {
			res.BlockingItems.Psps = append(res.BlockingItems.Psps, blocking(p.ProcessorID, p.ImplementationState))
		}
	}
	for _, m := range methods {
		res.PaymentMethodStats.add(m.Status)
		total += m.Status.Weight()
		if !m.Status.Resolved() {
			res.BlockingItems.PaymentMethods = append(res.BlockingItems.PaymentMethods, blocking(m.PaymentMethod, m.ImplementationState))
		}
	}
	res.Score = roundScore(total, res.PspStats.Total+res.PaymentMethodStats.Total)
	res.IsComplete = res.BlockingItems.Empty()
	return res
}

func blocking(id string, st domain.ImplementationState) BlockingItem {
	item := BlockingItem{ID: id, Status: st.Status}
	if st.Status == domain.ImplBlocked {
		item.Reason = st.BlockedReason
	}
	return item
}
