package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nexuscrm/nexus/pkg/domain"
)

const merchantColumns = `merchant_id,name,contact_email,contact_name,lifecycle_stage,sales_owner,implementation_owner,version,created_at,updated_at`

func scanMerchant(row pgx.Row) (domain.Merchant, error) {
	var m domain.Merchant
	var email, contact, sales, impl *string
	var stage string
	err := row.Scan(&m.MerchantID, &m.Name, &email, &contact, &stage, &sales, &impl, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Merchant{}, domain.ErrMerchantNotFound
		}
		return domain.Merchant{}, err
	}
	m.LifecycleStage = domain.Stage(stage)
	m.ContactEmail = deref(email)
	m.ContactName = deref(contact)
	m.SalesOwner = deref(sales)
	m.ImplementationOwner = deref(impl)
	return m, nil
}

func getMerchant(ctx context.Context, q querier, merchantID string) (domain.Merchant, error) {
	return scanMerchant(q.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE merchant_id=$1`, merchantID))
}

func (s *Store) GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	return getMerchant(ctx, s.DB, merchantID)
}

func (t *txStore) GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	return getMerchant(ctx, t.tx, merchantID)
}

// CreateMerchant inserts a merchant in SCOPING. New ids get the mrc_ prefix.
func (s *Store) CreateMerchant(ctx context.Context, m domain.Merchant) (domain.Merchant, error) {
	if strings.TrimSpace(m.Name) == "" {
		return domain.Merchant{}, domain.NewValidationError("name", "required")
	}
	if m.MerchantID == "" {
		m.MerchantID = "mrc_" + uuid.NewString()
	}
	return scanMerchant(s.DB.QueryRow(ctx, `
INSERT INTO merchants(merchant_id,name,contact_email,contact_name,lifecycle_stage,sales_owner,implementation_owner)
VALUES($1,$2,$3,$4,'SCOPING',$5,$6)
RETURNING `+merchantColumns,
		m.MerchantID, m.Name, nullable(m.ContactEmail), nullable(m.ContactName), nullable(m.SalesOwner), nullable(m.ImplementationOwner)))
}

// LockMerchant takes the row lock without waiting; a held lock means another execute
// is in flight.
func (t *txStore) LockMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	m, err := scanMerchant(t.tx.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE merchant_id=$1 FOR UPDATE NOWAIT`, merchantID))
	if err != nil {
		if isLockNotAvailable(err) {
			return domain.Merchant{}, domain.ErrMerchantLocked
		}
		return domain.Merchant{}, err
	}
	return m, nil
}

func (t *txStore) LockMerchantWait(ctx context.Context, merchantID string) (domain.Merchant, error) {
	return scanMerchant(t.tx.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE merchant_id=$1 FOR UPDATE`, merchantID))
}

func (t *txStore) UpdateMerchantStage(ctx context.Context, merchantID string, from, to domain.Stage) (domain.Merchant, error) {
	m, err := scanMerchant(t.tx.QueryRow(ctx, `
UPDATE merchants
SET lifecycle_stage=$3, version=version+1, updated_at=now()
WHERE merchant_id=$1 AND lifecycle_stage=$2
RETURNING `+merchantColumns, merchantID, string(from), string(to)))
	if errors.Is(err, domain.ErrMerchantNotFound) {
		return domain.Merchant{}, domain.ErrStageChanged
	}
	if err != nil {
		return domain.Merchant{}, fmt.Errorf("update merchant stage: %w", err)
	}
	return m, nil
}
