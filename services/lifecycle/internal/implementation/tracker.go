// Package implementation records operator progress on a merchant's PSP and payment
// method rows during IMPLEMENTING.
package implementation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
)

const (
	tablePspImplementations           = "merchant_psp_implementations"
	tablePaymentMethodImplementations = "merchant_payment_method_implementations"
)

type Store interface {
	InImplementationTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx lookups match processor ids and payment methods case-insensitively and return
// domain.ErrImplementationNotFound when no row exists.
type Tx interface {
	audit.Writer
	LockPspImplementation(ctx context.Context, merchantID, processorID string) (domain.MerchantPspImplementation, error)
	LockPaymentMethodImplementation(ctx context.Context, merchantID, paymentMethod string) (domain.MerchantPaymentMethodImplementation, error)
	SavePspImplementation(ctx context.Context, row domain.MerchantPspImplementation) error
	SavePaymentMethodImplementation(ctx context.Context, row domain.MerchantPaymentMethodImplementation) error
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (t *Tracker) UpdatePsp(ctx context.Context, merchantID, processorID string, u domain.StatusUpdate, actor domain.Actor) (domain.MerchantPspImplementation, error) {
	if err := validate(merchantID, processorID, u, actor); err != nil {
		return domain.MerchantPspImplementation{}, err
	}
	var out domain.MerchantPspImplementation
	err := t.store.InImplementationTx(ctx, func(tx Tx) error {
		row, err := tx.LockPspImplementation(ctx, merchantID, strings.TrimSpace(processorID))
		if err != nil {
			return err
		}
		before := row.ImplementationState
		row.ImplementationState = before.Apply(u, t.now())
		if err := tx.SavePspImplementation(ctx, row); err != nil {
			return fmt.Errorf("save psp implementation: %w", err)
		}
		if err := writeAudit(ctx, tx, merchantID, tablePspImplementations, row.ImplementationID, before, row.ImplementationState, actor); err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

func (t *Tracker) UpdatePaymentMethod(ctx context.Context, merchantID, paymentMethod string, u domain.StatusUpdate, actor domain.Actor) (domain.MerchantPaymentMethodImplementation, error) {
	if err := validate(merchantID, paymentMethod, u, actor); err != nil {
		return domain.MerchantPaymentMethodImplementation{}, err
	}
	var out domain.MerchantPaymentMethodImplementation
	err := t.store.InImplementationTx(ctx, func(tx Tx) error {
		row, err := tx.LockPaymentMethodImplementation(ctx, merchantID, strings.TrimSpace(paymentMethod))
		if err != nil {
			return err
		}
		before := row.ImplementationState
		row.ImplementationState = before.Apply(u, t.now())
		if err := tx.SavePaymentMethodImplementation(ctx, row); err != nil {
			return fmt.Errorf("save payment method implementation: %w", err)
		}
		if err := writeAudit(ctx, tx, merchantID, tablePaymentMethodImplementations, row.ImplementationID, before, row.ImplementationState, actor); err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

func validate(merchantID, item string, u domain.StatusUpdate, actor domain.Actor) error {
	if strings.TrimSpace(merchantID) == "" {
		return domain.NewValidationError("merchant_id", "required")
	}
	if strings.TrimSpace(item) == "" {
		return domain.NewValidationError("item", "required")
	}
	if strings.TrimSpace(actor.ID) == "" || !actor.Type.Valid() {
		return domain.NewValidationError("actor", "authenticated actor is required")
	}
	return u.Validate()
}

// writeAudit records status and reason changes. Timestamp churn alone is not audited.
func writeAudit(ctx context.Context, w audit.Writer, merchantID, table, targetID string, before, after domain.ImplementationState, actor domain.Actor) error {
	changes := []struct {
		field    string
		old, new string
	}{
		{"status", string(before.Status), string(after.Status)},
		{"blocked_reason", before.BlockedReason, after.BlockedReason},
		{"not_required_reason", before.NotRequiredReason, after.NotRequiredReason},
		{"notes", before.Notes, after.Notes},
	}
	for _, c := range changes {
		if c.old == c.new {
			continue
		}
		e := audit.FieldUpdate(merchantID, table, targetID, c.field, nullableValue(c.old), nullableValue(c.new), actor)
		if _, err := w.CreateAuditLog(ctx, e); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}
	}
	return nil
}

func nullableValue(v string) any {
	if v == "" {
		return nil
	}
	return v
}
