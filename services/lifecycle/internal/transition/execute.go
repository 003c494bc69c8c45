package transition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
)

type executeInput struct {
	merchantID   string
	actor        domain.Actor
	feedback     string
	acknowledged []domain.TransitionWarning
	to           domain.Stage
}

func (o *Orchestrator) TransitionToImplementing(ctx context.Context, in TransitionToImplementingInput) (TransitionResult, error) {
	return o.execute(ctx, executeInput{
		merchantID:   in.MerchantID,
		actor:        in.Actor,
		feedback:     in.UserFeedback,
		acknowledged: in.AcknowledgedWarnings,
		to:           domain.StageImplementing,
	})
}

// TransitionToLive never produces warnings, so nothing needs acknowledging.
func (o *Orchestrator) TransitionToLive(ctx context.Context, in TransitionToLiveInput) (TransitionResult, error) {
	return o.execute(ctx, executeInput{
		merchantID: in.MerchantID,
		actor:      in.Actor,
		feedback:   in.UserFeedback,
		to:         domain.StageLive,
	})
}

func (o *Orchestrator) execute(ctx context.Context, in executeInput) (TransitionResult, error) {
	if strings.TrimSpace(in.merchantID) == "" {
		return TransitionResult{}, domain.NewValidationError("merchant_id", "required")
	}
	if strings.TrimSpace(in.actor.ID) == "" {
		return TransitionResult{}, domain.NewValidationError("actor", "authenticated actor is required")
	}
	from, _ := domain.PreviousStage(in.to)
	log := o.log.With("merchant_id", in.merchantID, "from_stage", from, "to_stage", in.to, "actor_id", in.actor.ID)

	var res TransitionResult
	err := o.store.InTransitionTx(ctx, func(tx Tx) error {
		m, err := tx.LockMerchant(ctx, in.merchantID)
		if err != nil {
			if errors.Is(err, domain.ErrMerchantLocked) {
				return &ConflictError{MerchantID: in.merchantID, Reason: ConflictConcurrent, Expected: from}
			}
			return err
		}
		if m.LifecycleStage.Precedes(from) {
			// Skipping a stage is a bad request, not a race; nothing is recorded.
			return domain.NewInvalidTransitionError(m.LifecycleStage, in.to)
		}
		if m.LifecycleStage != from {
			return &ConflictError{MerchantID: in.merchantID, Reason: ConflictStageChanged, CurrentStage: m.LifecycleStage, Expected: from}
		}

		ev, err := o.evaluate(ctx, tx, tx, in.merchantID, in.to)
		if err != nil {
			return err
		}
		now := o.now()
		st := domain.StageTransition{
			TransitionID:         "stt_" + uuid.NewString(),
			MerchantID:           in.merchantID,
			FromStage:            from,
			ToStage:              in.to,
			TransitionedBy:       in.actor.ID,
			ScopeSnapshot:        snapshot(ev.scope),
			UserFeedback:         strings.TrimSpace(in.feedback),
			WarningsAcknowledged: []domain.TransitionWarning{},
			CreatedAt:            now,
		}
		res = TransitionResult{
			TransitionID:           st.TransitionID,
			FromStage:              from,
			ToStage:                in.to,
			Errors:                 ev.errors,
			Warnings:               ev.warnings,
			UnacknowledgedWarnings: []domain.TransitionWarning{},
		}

		if len(ev.errors) > 0 {
			return reject(ctx, tx, st, &res, domain.RejectionValidationFailed, strings.Join(ev.errors, "; "))
		}
		acked, missing := matchAcknowledgements(ev.warnings, in.acknowledged)
		if len(missing) > 0 {
			res.UnacknowledgedWarnings = missing
			return reject(ctx, tx, st, &res, domain.RejectionWarningsNotAcknowledged, unacknowledgedReason(missing))
		}
		st.WarningsAcknowledged = acked

		if _, err := tx.UpdateMerchantStage(ctx, in.merchantID, from, in.to); err != nil {
			if errors.Is(err, domain.ErrStageChanged) {
				return &ConflictError{MerchantID: in.merchantID, Reason: ConflictStageChanged, Expected: from}
			}
			return fmt.Errorf("update stage: %w", err)
		}
		if in.to == domain.StageImplementing {
			if err := createImplementationRows(ctx, tx, in.merchantID, ev, now, &res); err != nil {
				return err
			}
		}
		st.Status = domain.TransitionApproved
		if err := tx.InsertStageTransition(ctx, st); err != nil {
			return fmt.Errorf("insert stage transition: %w", err)
		}
		if _, err := tx.CreateAuditLog(ctx, audit.StageChange(in.merchantID, from, in.to, in.actor, st.TransitionID)); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}
		res.Success = true
		return nil
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			log.Warn("transition conflict", "reason", conflict.Reason, "current_stage", conflict.CurrentStage)
			return TransitionResult{}, err
		}
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			log.Info("transition refused", "current_stage", invalid.From)
			return TransitionResult{}, err
		}
		if errors.Is(err, domain.ErrMerchantNotFound) {
			return TransitionResult{}, err
		}
		log.Error("transition failed", "err", err)
		return TransitionResult{}, fmt.Errorf("transition to %s: %w", in.to, err)
	}
	if res.Success {
		log.Info("transition approved", "transition_id", res.TransitionID,
			"psp_rows", res.PspImplementationsCreated, "payment_method_rows", res.PaymentMethodImplementationsCreated)
	} else {
		log.Info("transition rejected", "transition_id", res.TransitionID, "rejection_code", res.RejectionCode)
	}
	return res, nil
}

// reject records the decision; returning nil lets the transaction commit the row
// while leaving the merchant untouched.
func reject(ctx context.Context, tx Tx, st domain.StageTransition, res *TransitionResult, code domain.RejectionCode, reason string) error {
	st.Status = domain.TransitionRejected
	st.RejectionCode = code
	st.RejectionReason = reason
	if err := tx.InsertStageTransition(ctx, st); err != nil {
		return fmt.Errorf("insert rejected transition: %w", err)
	}
	res.Success = false
	res.RejectionCode = code
	res.RejectionReason = reason
	return nil
}

func createImplementationRows(ctx context.Context, tx Tx, merchantID string, ev evaluation, now time.Time, res *TransitionResult) error {
	seed := func(supported bool) domain.ImplementationState {
		return domain.ImplementationState{Status: domain.ImplPending, PlatformSupported: supported, CreatedAt: now, UpdatedAt: now}
	}
	psps := domain.MergeArrayValues(nil, ev.scope.Psps)
	pspRows := make([]domain.MerchantPspImplementation, 0, len(psps))
	for _, id := range psps {
		pspRows = append(pspRows, domain.MerchantPspImplementation{
			ImplementationID:    "psi_" + uuid.NewString(),
			MerchantID:          merchantID,
			ProcessorID:         id,
			ImplementationState: seed(ev.support.PspSupported(id)),
		})
	}
	methods := domain.MergeArrayValues(nil, ev.scope.PaymentMethods)
	methodRows := make([]domain.MerchantPaymentMethodImplementation, 0, len(methods))
	for _, pm := range methods {
		methodRows = append(methodRows, domain.MerchantPaymentMethodImplementation{
			ImplementationID:    "pmi_" + uuid.NewString(),
			MerchantID:          merchantID,
			PaymentMethod:       pm,
			ImplementationState: seed(ev.support.PaymentMethodSupported(pm)),
		})
	}
	n, err := tx.InsertPspImplementations(ctx, pspRows)
	if err != nil {
		return fmt.Errorf("insert psp implementations: %w", err)
	}
	res.PspImplementationsCreated = n
	n, err = tx.InsertPaymentMethodImplementations(ctx, methodRows)
	if err != nil {
		return fmt.Errorf("insert payment method implementations: %w", err)
	}
	res.PaymentMethodImplementationsCreated = n
	return nil
}

// matchAcknowledgements splits warnings into those the caller acknowledged and those
// it did not. Matching is by type plus processor id or payment method.
func matchAcknowledgements(warnings, acknowledged []domain.TransitionWarning) (acked, missing []domain.TransitionWarning) {
	keys := make(map[string]struct{}, len(acknowledged))
	for _, a := range acknowledged {
		keys[a.Key()] = struct{}{}
	}
	acked = []domain.TransitionWarning{}
	missing = []domain.TransitionWarning{}
	for _, w := range warnings {
		if _, ok := keys[w.Key()]; ok {
			acked = append(acked, w)
		} else {
			missing = append(missing, w)
		}
	}
	return acked, missing
}

func unacknowledgedReason(missing []domain.TransitionWarning) string {
	msgs := make([]string, 0, len(missing))
	for _, w := range missing {
		msgs = append(msgs, w.Message)
	}
	return "Unacknowledged warnings: " + strings.Join(msgs, "; ")
}

func snapshot(doc *domain.ScopeDocument) *domain.ScopeDocument {
	if doc == nil {
		return nil
	}
	c := doc.Clone()
	return &c
}

// CheckSupport exposes the catalog check used during previews for callers that only
// want the advisory result.
func (o *Orchestrator) CheckSupport(ctx context.Context, req platform.SupportRequest) (platform.SupportResult, error) {
	return platform.NewChecker(o.catalog).Check(ctx, req)
}
