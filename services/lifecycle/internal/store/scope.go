package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nexuscrm/nexus/pkg/domain"
)

const scopeColumns = `scope_id,merchant_id,psps,countries,payment_methods,restrictions,dependencies,compliance_requirements,
expected_volume,expected_approval_rate,expected_go_live_date,comes_from_mor,deal_closed_by,
psps_status,countries_status,payment_methods_status,expected_volume_status,expected_approval_rate_status,
restrictions_status,dependencies_status,compliance_requirements_status,expected_go_live_date_status,
is_complete,created_at,updated_at`

func scanScope(row pgx.Row) (*domain.ScopeDocument, error) {
	var d domain.ScopeDocument
	var dealClosedBy *string
	var goLive *time.Time
	var st [9]string
	err := row.Scan(
		&d.ScopeID, &d.MerchantID,
		&d.Psps, &d.Countries, &d.PaymentMethods, &d.Restrictions, &d.Dependencies, &d.ComplianceRequirements,
		&d.ExpectedVolume, &d.ExpectedApprovalRate, &goLive, &d.ComesFromMor, &dealClosedBy,
		&st[0], &st[1], &st[2], &st[3], &st[4], &st[5], &st[6], &st[7], &st[8],
		&d.IsComplete, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.ExpectedGoLiveDate = goLive
	d.DealClosedBy = deref(dealClosedBy)
	for i, f := range domain.TrackedFields {
		d.Statuses.Set(f, domain.FieldStatus(st[i]))
	}
	return &d, nil
}

func (s *Store) GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	return scanScope(s.DB.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scope_documents WHERE merchant_id=$1`, merchantID))
}

func (t *txStore) GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	return scanScope(t.tx.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scope_documents WHERE merchant_id=$1`, merchantID))
}

func (t *txStore) LockScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	return scanScope(t.tx.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scope_documents WHERE merchant_id=$1 FOR UPDATE`, merchantID))
}

// UpsertScopeDocument writes every column; statuses are stored as computed by the caller.
func (t *txStore) UpsertScopeDocument(ctx context.Context, d domain.ScopeDocument) error {
	args := []any{
		d.ScopeID, d.MerchantID,
		nonNil(d.Psps), nonNil(d.Countries), nonNil(d.PaymentMethods),
		nonNil(d.Restrictions), nonNil(d.Dependencies), nonNil(d.ComplianceRequirements),
		nullDecimal(d.ExpectedVolume), nullDecimal(d.ExpectedApprovalRate), d.ExpectedGoLiveDate, d.ComesFromMor, nullable(d.DealClosedBy),
	}
	for _, f := range domain.TrackedFields {
		st := d.Statuses.Get(f)
		if st == "" {
			st = domain.FieldMissing
		}
		args = append(args, string(st))
	}
	args = append(args, d.IsComplete)
	_, err := t.tx.Exec(ctx, `
INSERT INTO scope_documents(`+scopeColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,now(),now())
ON CONFLICT (merchant_id) DO UPDATE SET
  psps=EXCLUDED.psps,
  countries=EXCLUDED.countries,
  payment_methods=EXCLUDED.payment_methods,
  restrictions=EXCLUDED.restrictions,
  dependencies=EXCLUDED.dependencies,
  compliance_requirements=EXCLUDED.compliance_requirements,
  expected_volume=EXCLUDED.expected_volume,
  expected_approval_rate=EXCLUDED.expected_approval_rate,
  expected_go_live_date=EXCLUDED.expected_go_live_date,
  comes_from_mor=EXCLUDED.comes_from_mor,
  deal_closed_by=EXCLUDED.deal_closed_by,
  psps_status=EXCLUDED.psps_status,
  countries_status=EXCLUDED.countries_status,
  payment_methods_status=EXCLUDED.payment_methods_status,
  expected_volume_status=EXCLUDED.expected_volume_status,
  expected_approval_rate_status=EXCLUDED.expected_approval_rate_status,
  restrictions_status=EXCLUDED.restrictions_status,
  dependencies_status=EXCLUDED.dependencies_status,
  compliance_requirements_status=EXCLUDED.compliance_requirements_status,
  expected_go_live_date_status=EXCLUDED.expected_go_live_date_status,
  is_complete=EXCLUDED.is_complete,
  updated_at=now()
`, args...)
	return err
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
