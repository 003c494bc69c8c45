package implementation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type fakeStore struct {
	psps    map[string]domain.MerchantPspImplementation
	methods map[string]domain.MerchantPaymentMethodImplementation
	audits  []domain.AuditLogEntry
}

func (f *fakeStore) InImplementationTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(f)
}

func (f *fakeStore) LockPspImplementation(ctx context.Context, merchantID, id string) (domain.MerchantPspImplementation, error) {
	row, ok := f.psps[domain.NormalizeKey(id)]
	if !ok || row.MerchantID != merchantID {
		return row, domain.ErrImplementationNotFound
	}
	return row, nil
}

func (f *fakeStore) LockPaymentMethodImplementation(ctx context.Context, merchantID, pm string) (domain.MerchantPaymentMethodImplementation, error) {
	row, ok := f.methods[domain.NormalizeKey(pm)]
	if !ok || row.MerchantID != merchantID {
		return row, domain.ErrImplementationNotFound
	}
	return row, nil
}

func (f *fakeStore) SavePspImplementation(ctx context.Context, row domain.MerchantPspImplementation) error {
	f.psps[domain.NormalizeKey(row.ProcessorID)] = row
	return nil
}

func (f *fakeStore) SavePaymentMethodImplementation(ctx context.Context, row domain.MerchantPaymentMethodImplementation) error {
	f.methods[domain.NormalizeKey(row.PaymentMethod)] = row
	return nil
}

func (f *fakeStore) CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) (string, error) {
	f.audits = append(f.audits, e)
	return "aud_1", nil
}

func newFake() *fakeStore {
	return &fakeStore{
		psps: map[string]domain.MerchantPspImplementation{
			"stripe": {ImplementationID: "psi_1", MerchantID: "mrc_1", ProcessorID: "stripe", ImplementationState: domain.ImplementationState{Status: domain.ImplPending}},
		},
		methods: map[string]domain.MerchantPaymentMethodImplementation{
			"pix": {ImplementationID: "pmi_1", MerchantID: "mrc_1", PaymentMethod: "pix", ImplementationState: domain.ImplementationState{Status: domain.ImplPending}},
		},
	}
}

var operator = domain.Actor{ID: "usr_ops", Type: domain.ActorUser}

func fixedTracker(f *fakeStore, at time.Time) *Tracker {
	tr := NewTracker(f)
	tr.now = func() time.Time { return at }
	return tr
}

func TestUpdatePspLifecycle(t *testing.T) {
	f := newFake()
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	row, err := fixedTracker(f, t0).UpdatePsp(context.Background(), "mrc_1", "Stripe", domain.StatusUpdate{Status: domain.ImplInProgress}, operator)
	require.NoError(t, err)
	require.NotNil(t, row.StartedAt)
	assert.Equal(t, t0, *row.StartedAt)
	assert.Nil(t, row.CompletedAt)

	t1 := t0.Add(48 * time.Hour)
	row, err = fixedTracker(f, t1).UpdatePsp(context.Background(), "mrc_1", "stripe", domain.StatusUpdate{Status: domain.ImplLive}, operator)
	require.NoError(t, err)
	assert.Equal(t, t0, *row.StartedAt)
	require.NotNil(t, row.CompletedAt)
	assert.Equal(t, t1, *row.CompletedAt)

	require.Len(t, f.audits, 2)
	assert.Equal(t, "status", f.audits[1].TargetField)
	assert.Equal(t, "IN_PROGRESS", f.audits[1].OldValue)
	assert.Equal(t, "LIVE", f.audits[1].NewValue)
	assert.Equal(t, "merchant_psp_implementations", f.audits[1].TargetTable)
}

func TestUpdateRequiresReasons(t *testing.T) {
	f := newFake()
	tr := NewTracker(f)

	_, err := tr.UpdatePsp(context.Background(), "mrc_1", "stripe", domain.StatusUpdate{Status: domain.ImplBlocked}, operator)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "blocked_reason", ve.Field)

	_, err = tr.UpdatePaymentMethod(context.Background(), "mrc_1", "pix", domain.StatusUpdate{Status: domain.ImplNotRequired}, operator)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "not_required_reason", ve.Field)
	assert.Empty(t, f.audits)
	assert.Equal(t, domain.ImplPending, f.methods["pix"].Status)
}

func TestUpdateBlockedThenUnblockedClearsReason(t *testing.T) {
	f := newFake()
	tr := NewTracker(f)
	row, err := tr.UpdatePaymentMethod(context.Background(), "mrc_1", "PIX", domain.StatusUpdate{Status: domain.ImplBlocked, BlockedReason: "bank contract pending"}, operator)
	require.NoError(t, err)
	assert.Equal(t, "bank contract pending", row.BlockedReason)

	row, err = tr.UpdatePaymentMethod(context.Background(), "mrc_1", "pix", domain.StatusUpdate{Status: domain.ImplInProgress}, operator)
	require.NoError(t, err)
	assert.Empty(t, row.BlockedReason)
	fields := []string{}
	for _, a := range f.audits {
		fields = append(fields, a.TargetField)
	}
	assert.Equal(t, []string{"status", "blocked_reason", "status", "blocked_reason"}, fields)
}

func TestUpdateUnknownRow(t *testing.T) {
	_, err := NewTracker(newFake()).UpdatePsp(context.Background(), "mrc_1", "adyen", domain.StatusUpdate{Status: domain.ImplLive}, operator)
	assert.ErrorIs(t, err, domain.ErrImplementationNotFound)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	_, err := NewTracker(newFake()).UpdatePsp(context.Background(), "mrc_1", "stripe", domain.StatusUpdate{Status: "DONE"}, operator)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}
