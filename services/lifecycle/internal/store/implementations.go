package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/pkg/domain"
)

const implementationStateColumns = `status,platform_supported,blocked_reason,not_required_reason,notes,started_at,completed_at,created_at,updated_at`

type stateScan struct {
	status                      string
	blocked, notRequired, notes *string
	st                          domain.ImplementationState
}

func (s *stateScan) targets() []any {
	return []any{&s.status, &s.st.PlatformSupported, &s.blocked, &s.notRequired, &s.notes, &s.st.StartedAt, &s.st.CompletedAt, &s.st.CreatedAt, &s.st.UpdatedAt}
}

func (s *stateScan) state() domain.ImplementationState {
	out := s.st
	out.Status = domain.ImplementationStatus(s.status)
	out.BlockedReason = deref(s.blocked)
	out.NotRequiredReason = deref(s.notRequired)
	out.Notes = deref(s.notes)
	return out
}

func scanPsp(row pgx.Row) (domain.MerchantPspImplementation, error) {
	var r domain.MerchantPspImplementation
	var ss stateScan
	if err := row.Scan(append([]any{&r.ImplementationID, &r.MerchantID, &r.ProcessorID}, ss.targets()...)...); err != nil {
		return r, err
	}
	r.ImplementationState = ss.state()
	return r, nil
}

func scanPaymentMethod(row pgx.Row) (domain.MerchantPaymentMethodImplementation, error) {
	var r domain.MerchantPaymentMethodImplementation
	var ss stateScan
	if err := row.Scan(append([]any{&r.ImplementationID, &r.MerchantID, &r.PaymentMethod}, ss.targets()...)...); err != nil {
		return r, err
	}
	r.ImplementationState = ss.state()
	return r, nil
}

func listPsps(ctx context.Context, q querier, merchantID string) ([]domain.MerchantPspImplementation, error) {
	rows, err := q.Query(ctx, `
SELECT implementation_id,merchant_id,processor_id,`+implementationStateColumns+`
FROM merchant_psp_implementations
WHERE merchant_id=$1
ORDER BY created_at ASC, processor_id ASC
`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MerchantPspImplementation{}
	for rows.Next() {
		r, err := scanPsp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func listPaymentMethods(ctx context.Context, q querier, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error) {
	rows, err := q.Query(ctx, `
SELECT implementation_id,merchant_id,payment_method,`+implementationStateColumns+`
FROM merchant_payment_method_implementations
WHERE merchant_id=$1
ORDER BY created_at ASC, payment_method ASC
`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MerchantPaymentMethodImplementation{}
	for rows.Next() {
		r, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListPspImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPspImplementation, error) {
	return listPsps(ctx, s.DB, merchantID)
}

func (s *Store) ListPaymentMethodImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error) {
	return listPaymentMethods(ctx, s.DB, merchantID)
}

func (t *txStore) ListPspImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPspImplementation, error) {
	return listPsps(ctx, t.tx, merchantID)
}

func (t *txStore) ListPaymentMethodImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error) {
	return listPaymentMethods(ctx, t.tx, merchantID)
}

// InsertPspImplementations queues every row in one batch. Rows that collide with an
// existing (merchant, processor) pair are skipped.
func (t *txStore) InsertPspImplementations(ctx context.Context, rows []domain.MerchantPspImplementation) (int, error) {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
INSERT INTO merchant_psp_implementations(implementation_id,merchant_id,processor_id,status,platform_supported,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT DO NOTHING
`, r.ImplementationID, r.MerchantID, r.ProcessorID, string(r.Status), r.PlatformSupported, createdAt(r.CreatedAt))
	}
	return execBatch(ctx, t.tx, b)
}

func (t *txStore) InsertPaymentMethodImplementations(ctx context.Context, rows []domain.MerchantPaymentMethodImplementation) (int, error) {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
INSERT INTO merchant_payment_method_implementations(implementation_id,merchant_id,payment_method,status,platform_supported,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT DO NOTHING
`, r.ImplementationID, r.MerchantID, r.PaymentMethod, string(r.Status), r.PlatformSupported, createdAt(r.CreatedAt))
	}
	return execBatch(ctx, t.tx, b)
}

func execBatch(ctx context.Context, q querier, b *pgx.Batch) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	br := q.SendBatch(ctx, b)
	n := 0
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return n, err
		}
		n += int(tag.RowsAffected())
	}
	return n, br.Close()
}

func (t *txStore) LockPspImplementation(ctx context.Context, merchantID, processorID string) (domain.MerchantPspImplementation, error) {
	r, err := scanPsp(t.tx.QueryRow(ctx, `
SELECT implementation_id,merchant_id,processor_id,`+implementationStateColumns+`
FROM merchant_psp_implementations
WHERE merchant_id=$1 AND lower(processor_id)=lower($2)
FOR UPDATE
`, merchantID, processorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, domain.ErrImplementationNotFound
	}
	return r, err
}

func (t *txStore) LockPaymentMethodImplementation(ctx context.Context, merchantID, paymentMethod string) (domain.MerchantPaymentMethodImplementation, error) {
	r, err := scanPaymentMethod(t.tx.QueryRow(ctx, `
SELECT implementation_id,merchant_id,payment_method,`+implementationStateColumns+`
FROM merchant_payment_method_implementations
WHERE merchant_id=$1 AND lower(payment_method)=lower($2)
FOR UPDATE
`, merchantID, paymentMethod))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, domain.ErrImplementationNotFound
	}
	return r, err
}

func (t *txStore) SavePspImplementation(ctx context.Context, r domain.MerchantPspImplementation) error {
	return saveState(ctx, t.tx, "merchant_psp_implementations", r.ImplementationID, r.ImplementationState)
}

func (t *txStore) SavePaymentMethodImplementation(ctx context.Context, r domain.MerchantPaymentMethodImplementation) error {
	return saveState(ctx, t.tx, "merchant_payment_method_implementations", r.ImplementationID, r.ImplementationState)
}

// saveState only receives one of the two fixed table names above.
func saveState(ctx context.Context, q querier, table, id string, st domain.ImplementationState) error {
	tag, err := q.Exec(ctx, `
UPDATE `+table+`
SET status=$2, blocked_reason=$3, not_required_reason=$4, notes=$5, started_at=$6, completed_at=$7, updated_at=$8
WHERE implementation_id=$1
`, id, string(st.Status), nullable(st.BlockedReason), nullable(st.NotRequiredReason), nullable(st.Notes), st.StartedAt, st.CompletedAt, createdAt(st.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrImplementationNotFound
	}
	return nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
