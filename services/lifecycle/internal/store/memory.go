package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/implementation"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/scope"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

// Memory is an in-process store for local runs and handler tests. Transactions are
// serialized and commit by swapping in a working copy, so a failed transaction
// leaves no trace.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memData

	processors   map[string]domain.PlatformProcessor
	features     []domain.CountryProcessorFeature
	credentials  map[string]authn.Identity
	idempotency  map[string]idempotency.Record
	authFailures []string
}

type memData struct {
	merchants   map[string]domain.Merchant
	scopes      map[string]domain.ScopeDocument
	psps        []domain.MerchantPspImplementation
	methods     []domain.MerchantPaymentMethodImplementation
	transitions []domain.StageTransition
	audits      []domain.AuditLogEntry
}

func NewMemory() *Memory {
	return &Memory{
		data:        memData{merchants: map[string]domain.Merchant{}, scopes: map[string]domain.ScopeDocument{}},
		processors:  map[string]domain.PlatformProcessor{},
		credentials: map[string]authn.Identity{},
		idempotency: map[string]idempotency.Record{},
	}
}

func (d memData) clone() memData {
	out := memData{
		merchants:   make(map[string]domain.Merchant, len(d.merchants)),
		scopes:      make(map[string]domain.ScopeDocument, len(d.scopes)),
		psps:        append([]domain.MerchantPspImplementation(nil), d.psps...),
		methods:     append([]domain.MerchantPaymentMethodImplementation(nil), d.methods...),
		transitions: append([]domain.StageTransition(nil), d.transitions...),
		audits:      append([]domain.AuditLogEntry(nil), d.audits...),
	}
	for k, v := range d.merchants {
		out.merchants[k] = v
	}
	for k, v := range d.scopes {
		out.scopes[k] = v.Clone()
	}
	return out
}

// memTx reads the catalog straight from the owning Memory; catalog data is not part
// of the transactional copy.
type memTx struct {
	platform.Catalog
	data *memData
}

func (m *Memory) withTx(fn func(t *memTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.data.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{Catalog: m, data: &work}); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) read() memData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

func (m *Memory) InTransitionTx(ctx context.Context, fn func(tx transition.Tx) error) error {
	return m.withTx(func(t *memTx) error { return fn(t) })
}

func (m *Memory) InScopeTx(ctx context.Context, fn func(tx scope.Tx) error) error {
	return m.withTx(func(t *memTx) error { return fn(t) })
}

func (m *Memory) InImplementationTx(ctx context.Context, fn func(tx implementation.Tx) error) error {
	return m.withTx(func(t *memTx) error { return fn(t) })
}

func (m *Memory) CreateMerchant(ctx context.Context, in domain.Merchant) (domain.Merchant, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Merchant{}, domain.NewValidationError("name", "required")
	}
	var out domain.Merchant
	err := m.withTx(func(t *memTx) error {
		if in.MerchantID == "" {
			in.MerchantID = "mrc_" + uuid.NewString()
		}
		now := time.Now().UTC()
		in.LifecycleStage = domain.StageScoping
		in.Version = 1
		in.CreatedAt, in.UpdatedAt = now, now
		t.data.merchants[in.MerchantID] = in
		out = in
		return nil
	})
	return out, err
}

// PutMerchant stores m as-is. Fixtures use it to seed merchants in any stage.
func (m *Memory) PutMerchant(mer domain.Merchant) {
	_ = m.withTx(func(t *memTx) error {
		t.data.merchants[mer.MerchantID] = mer
		return nil
	})
}

func (m *Memory) PutScopeDocument(doc domain.ScopeDocument) {
	_ = m.withTx(func(t *memTx) error { return t.UpsertScopeDocument(context.Background(), doc) })
}

func (m *Memory) GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	d := m.read()
	return (&memTx{data: &d}).GetMerchant(ctx, merchantID)
}

func (m *Memory) GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	d := m.read()
	return (&memTx{data: &d}).GetScopeDocument(ctx, merchantID)
}

func (m *Memory) ListPspImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPspImplementation, error) {
	d := m.read()
	return (&memTx{data: &d}).ListPspImplementations(ctx, merchantID)
}

func (m *Memory) ListPaymentMethodImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error) {
	d := m.read()
	return (&memTx{data: &d}).ListPaymentMethodImplementations(ctx, merchantID)
}

func (m *Memory) ListTransitions(ctx context.Context, merchantID string) ([]domain.StageTransition, error) {
	d := m.read()
	out := []domain.StageTransition{}
	for i := len(d.transitions) - 1; i >= 0; i-- {
		if d.transitions[i].MerchantID == merchantID {
			out = append(out, d.transitions[i])
		}
	}
	return out, nil
}

func (m *Memory) ListAuditLog(ctx context.Context, merchantID string) ([]domain.AuditLogEntry, error) {
	d := m.read()
	out := []domain.AuditLogEntry{}
	for _, e := range d.audits {
		if e.MerchantID == merchantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	mer, ok := t.data.merchants[merchantID]
	if !ok {
		return domain.Merchant{}, domain.ErrMerchantNotFound
	}
	return mer, nil
}

// LockMerchant never reports contention; transactions are already serialized.
func (t *memTx) LockMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	return t.GetMerchant(ctx, merchantID)
}

func (t *memTx) LockMerchantWait(ctx context.Context, merchantID string) (domain.Merchant, error) {
	return t.GetMerchant(ctx, merchantID)
}

func (t *memTx) UpdateMerchantStage(ctx context.Context, merchantID string, from, to domain.Stage) (domain.Merchant, error) {
	mer, err := t.GetMerchant(ctx, merchantID)
	if err != nil || mer.LifecycleStage != from {
		return domain.Merchant{}, domain.ErrStageChanged
	}
	mer.LifecycleStage = to
	mer.Version++
	mer.UpdatedAt = time.Now().UTC()
	t.data.merchants[merchantID] = mer
	return mer, nil
}

func (t *memTx) GetScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	doc, ok := t.data.scopes[merchantID]
	if !ok {
		return nil, nil
	}
	c := doc.Clone()
	return &c, nil
}

func (t *memTx) LockScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error) {
	return t.GetScopeDocument(ctx, merchantID)
}

func (t *memTx) UpsertScopeDocument(ctx context.Context, doc domain.ScopeDocument) error {
	if _, ok := t.data.merchants[doc.MerchantID]; !ok {
		return domain.ErrMerchantNotFound
	}
	t.data.scopes[doc.MerchantID] = doc.Clone()
	return nil
}

func (t *memTx) ListPspImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPspImplementation, error) {
	out := []domain.MerchantPspImplementation{}
	for _, r := range t.data.psps {
		if r.MerchantID == merchantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) ListPaymentMethodImplementations(ctx context.Context, merchantID string) ([]domain.MerchantPaymentMethodImplementation, error) {
	out := []domain.MerchantPaymentMethodImplementation{}
	for _, r := range t.data.methods {
		if r.MerchantID == merchantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) InsertPspImplementations(ctx context.Context, rows []domain.MerchantPspImplementation) (int, error) {
	n := 0
	for _, r := range rows {
		if _, err := t.LockPspImplementation(ctx, r.MerchantID, r.ProcessorID); err == nil {
			continue
		}
		t.data.psps = append(t.data.psps, r)
		n++
	}
	return n, nil
}

func (t *memTx) InsertPaymentMethodImplementations(ctx context.Context, rows []domain.MerchantPaymentMethodImplementation) (int, error) {
	n := 0
	for _, r := range rows {
		if _, err := t.LockPaymentMethodImplementation(ctx, r.MerchantID, r.PaymentMethod); err == nil {
			continue
		}
		t.data.methods = append(t.data.methods, r)
		n++
	}
	return n, nil
}

func (t *memTx) LockPspImplementation(ctx context.Context, merchantID, processorID string) (domain.MerchantPspImplementation, error) {
	for _, r := range t.data.psps {
		if r.MerchantID == merchantID && domain.NormalizeKey(r.ProcessorID) == domain.NormalizeKey(processorID) {
			return r, nil
		}
	}
	return domain.MerchantPspImplementation{}, domain.ErrImplementationNotFound
}

func (t *memTx) LockPaymentMethodImplementation(ctx context.Context, merchantID, paymentMethod string) (domain.MerchantPaymentMethodImplementation, error) {
	for _, r := range t.data.methods {
		if r.MerchantID == merchantID && domain.NormalizeKey(r.PaymentMethod) == domain.NormalizeKey(paymentMethod) {
			return r, nil
		}
	}
	return domain.MerchantPaymentMethodImplementation{}, domain.ErrImplementationNotFound
}

func (t *memTx) SavePspImplementation(ctx context.Context, row domain.MerchantPspImplementation) error {
	for i, r := range t.data.psps {
		if r.ImplementationID == row.ImplementationID {
			t.data.psps[i] = row
			return nil
		}
	}
	return domain.ErrImplementationNotFound
}

func (t *memTx) SavePaymentMethodImplementation(ctx context.Context, row domain.MerchantPaymentMethodImplementation) error {
	for i, r := range t.data.methods {
		if r.ImplementationID == row.ImplementationID {
			t.data.methods[i] = row
			return nil
		}
	}
	return domain.ErrImplementationNotFound
}

func (t *memTx) InsertStageTransition(ctx context.Context, st domain.StageTransition) error {
	st.CreatedAt = createdAt(st.CreatedAt)
	t.data.transitions = append(t.data.transitions, st)
	return nil
}

func (t *memTx) CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) (string, error) {
	if err := audit.Validate(e); err != nil {
		return "", err
	}
	if e.AuditID == "" {
		e.AuditID = "aud_" + uuid.NewString()
	}
	e.CreatedAt = createdAt(e.CreatedAt)
	t.data.audits = append(t.data.audits, e)
	return e.AuditID, nil
}

func (m *Memory) ImportCatalog(ctx context.Context, c CatalogFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range c.Processors {
		p.UpdatedAt = time.Now().UTC()
		m.processors[p.ProcessorID] = p
	}
	for _, f := range c.Features {
		replaced := false
		for i, existing := range m.features {
			if existing.ProcessorID == f.ProcessorID && existing.Country == f.Country {
				m.features[i] = f
				replaced = true
			}
		}
		if !replaced {
			m.features = append(m.features, f)
		}
	}
	return nil
}

func (m *Memory) GetProcessors(ctx context.Context, ids []string) (map[string]domain.PlatformProcessor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[strings.ToLower(strings.TrimSpace(id))] = true
	}
	out := map[string]domain.PlatformProcessor{}
	for id, p := range m.processors {
		if want[strings.ToLower(id)] {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) ListProcessorsByStatus(ctx context.Context, status domain.PlatformStatus) ([]domain.PlatformProcessor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.PlatformProcessor{}
	for _, p := range m.processors {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessorID < out[j].ProcessorID })
	return out, nil
}

func (m *Memory) ListCountryFeatures(ctx context.Context, processorIDs []string) ([]domain.CountryProcessorFeature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := map[string]bool{}
	for _, id := range processorIDs {
		want[id] = true
	}
	out := []domain.CountryProcessorFeature{}
	for _, f := range m.features {
		if want[f.ProcessorID] {
			out = append(out, f)
		}
	}
	return out, nil
}

// AddCredential registers a token hash. An empty scope list grants every scope.
func (m *Memory) AddCredential(actor domain.Actor, tokenHash string, scopes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(scopes) == 0 {
		scopes = authn.AllScopes
	}
	m.credentials[tokenHash] = authn.Identity{CredentialID: "crd_" + uuid.NewString(), Actor: actor, Scopes: scopes}
}

func (m *Memory) LookupOperatorCredential(ctx context.Context, tokenHash string) (*authn.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.credentials[tokenHash]
	if !ok {
		return nil, authn.ErrUnauthorized
	}
	return &id, nil
}

func (m *Memory) RecordAuthFailure(ctx context.Context, endpoint, actorID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures = append(m.authFailures, endpoint+": "+reason)
}

func idempotencyKey(actorID, key, endpoint string) string {
	return actorID + "\x00" + key + "\x00" + endpoint
}

func (m *Memory) GetIdempotencyRecord(ctx context.Context, actorID, key, endpoint string) (idempotency.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.idempotency[idempotencyKey(actorID, key, endpoint)]
	return rec, ok, nil
}

func (m *Memory) SaveIdempotencyRecord(ctx context.Context, actorID, key, endpoint string, rec idempotency.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idempotencyKey(actorID, key, endpoint)
	if _, exists := m.idempotency[k]; !exists {
		m.idempotency[k] = rec
	}
	return nil
}
