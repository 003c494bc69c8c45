// Package scope applies field updates to a merchant's scope document. Updates come from
// operators or from the upstream extraction pipeline; both are audited the same way.
package scope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/audit"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
)

const (
	fieldComesFromMor = "comes_from_mor"
	fieldDealClosedBy = "deal_closed_by"

	tableScopeDocuments = "scope_documents"
)

type Mode string

const (
	ModeReplace Mode = "replace"
	ModeMerge   Mode = "merge"
)

// FieldUpdate sets one field. A JSON null clears it.
type FieldUpdate struct {
	Field string          `json:"field"`
	Mode  Mode            `json:"mode,omitempty"`
	Value json.RawMessage `json:"value"`
}

type ApplyInput struct {
	MerchantID string
	Actor      domain.Actor
	SourceType string
	SourceID   string
	Reason     string
	Updates    []FieldUpdate
}

type ApplyResult struct {
	Scope         domain.ScopeDocument           `json:"scope"`
	Created       bool                           `json:"created"`
	ChangedFields []string                       `json:"changed_fields"`
	Readiness     readiness.ScopeReadinessResult `json:"readiness"`
}

type Store interface {
	InScopeTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	audit.Writer
	// LockMerchantWait takes the merchant row lock, waiting for any holder. It
	// serializes applies for one merchant, including the one that creates the
	// document, and holds off a concurrent stage change.
	LockMerchantWait(ctx context.Context, merchantID string) (domain.Merchant, error)
	// LockScopeDocument returns nil without error when no document exists yet.
	LockScopeDocument(ctx context.Context, merchantID string) (*domain.ScopeDocument, error)
	UpsertScopeDocument(ctx context.Context, doc domain.ScopeDocument) error
}

type Applicator struct {
	store Store
	now   func() time.Time
}

func NewApplicator(store Store) *Applicator {
	return &Applicator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Apply validates every update before writing anything, so a bad update leaves the
// document untouched.
func (a *Applicator) Apply(ctx context.Context, in ApplyInput) (ApplyResult, error) {
	if strings.TrimSpace(in.MerchantID) == "" {
		return ApplyResult{}, domain.NewValidationError("merchant_id", "required")
	}
	if !in.Actor.Type.Valid() || strings.TrimSpace(in.Actor.ID) == "" {
		return ApplyResult{}, domain.NewValidationError("actor", "authenticated actor is required")
	}
	if len(in.Updates) == 0 {
		return ApplyResult{}, domain.NewValidationError("updates", "at least one update is required")
	}

	var res ApplyResult
	err := a.store.InScopeTx(ctx, func(tx Tx) error {
		m, err := tx.LockMerchantWait(ctx, in.MerchantID)
		if err != nil {
			return err
		}
		if m.LifecycleStage == domain.StageLive {
			return domain.NewValidationError("merchant_id", "scope is frozen once the merchant is LIVE")
		}
		current, err := tx.LockScopeDocument(ctx, in.MerchantID)
		if err != nil {
			return fmt.Errorf("load scope: %w", err)
		}
		now := a.now()
		var doc domain.ScopeDocument
		if current == nil {
			doc = domain.NewScopeDocument(in.MerchantID)
			doc.ScopeID = "scp_" + uuid.NewString()
			doc.CreatedAt = now
			res.Created = true
		} else {
			doc = current.Clone()
		}
		before := doc.Clone()

		for i, u := range in.Updates {
			if err := applyOne(&doc, u); err != nil {
				var ve *domain.ValidationError
				if errors.As(err, &ve) {
					ve.Field = fmt.Sprintf("updates[%d].%s", i, ve.Field)
				}
				return err
			}
		}
		doc.Recompute()
		doc.UpdatedAt = now

		res.ChangedFields = []string{}
		for _, name := range touchedFields(in.Updates) {
			oldV, newV := fieldValue(before, name), fieldValue(doc, name)
			if !res.Created && sameJSON(oldV, newV) {
				continue
			}
			res.ChangedFields = append(res.ChangedFields, name)
			entry := audit.FieldUpdate(in.MerchantID, tableScopeDocuments, doc.ScopeID, name, oldV, newV, in.Actor)
			if res.Created {
				entry.ChangeType = domain.ChangeCreate
				entry.OldValue = nil
			}
			entry.SourceType = in.SourceType
			entry.SourceID = in.SourceID
			entry.Reason = in.Reason
			if _, err := tx.CreateAuditLog(ctx, entry); err != nil {
				return fmt.Errorf("write audit entry: %w", err)
			}
		}
		if len(res.ChangedFields) > 0 || res.Created {
			if err := tx.UpsertScopeDocument(ctx, doc); err != nil {
				return fmt.Errorf("save scope: %w", err)
			}
		} else {
			doc = before
		}
		res.Scope = doc
		res.Readiness = readiness.CalculateScopeReadiness(doc.Statuses)
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return res, nil
}

func applyOne(doc *domain.ScopeDocument, u FieldUpdate) error {
	name := strings.ToLower(strings.TrimSpace(u.Field))
	mode := u.Mode
	if mode == "" {
		mode = ModeReplace
	}
	if mode != ModeReplace && mode != ModeMerge {
		return domain.NewValidationError("mode", "must be replace or merge")
	}
	raw := u.Value
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("null")
	}

	switch name {
	case fieldComesFromMor:
		if mode == ModeMerge {
			return domain.NewValidationError("mode", "merge applies to array fields only")
		}
		var v *bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return domain.NewValidationError("value", "expected a boolean")
		}
		doc.ComesFromMor = v
		return nil
	case fieldDealClosedBy:
		if mode == ModeMerge {
			return domain.NewValidationError("mode", "merge applies to array fields only")
		}
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return domain.NewValidationError("value", "expected a string")
		}
		doc.DealClosedBy = ""
		if v != nil {
			doc.DealClosedBy = strings.TrimSpace(*v)
		}
		return nil
	}

	f, ok := domain.ParseScopeField(name)
	if !ok {
		return domain.NewValidationError("field", "unknown scope field "+u.Field)
	}
	if f.IsArray() {
		var incoming []string
		if err := json.Unmarshal(raw, &incoming); err != nil {
			return domain.NewValidationError("value", "expected an array of strings")
		}
		target := doc.Strings(f)
		if mode == ModeMerge {
			*target = domain.MergeArrayValues(*target, incoming)
		} else {
			*target = domain.MergeArrayValues(nil, incoming)
		}
		return nil
	}
	if mode == ModeMerge {
		return domain.NewValidationError("mode", "merge applies to array fields only")
	}
	switch f {
	case domain.FieldExpectedVolume, domain.FieldExpectedApprovalRate:
		var d decimal.NullDecimal
		if err := json.Unmarshal(raw, &d); err != nil {
			return domain.NewValidationError("value", "expected a decimal number")
		}
		if d.Valid && d.Decimal.IsNegative() {
			return domain.NewValidationError("value", "must not be negative")
		}
		if f == domain.FieldExpectedApprovalRate {
			if d.Valid && d.Decimal.GreaterThan(decimal.NewFromInt(100)) {
				return domain.NewValidationError("value", "approval rate is a percentage between 0 and 100")
			}
			doc.ExpectedApprovalRate = d
		} else {
			doc.ExpectedVolume = d
		}
	case domain.FieldExpectedGoLiveDate:
		var s *string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.NewValidationError("value", "expected a date string")
		}
		if s == nil || strings.TrimSpace(*s) == "" {
			doc.ExpectedGoLiveDate = nil
			return nil
		}
		t, err := parseDate(*s)
		if err != nil {
			return domain.NewValidationError("value", "expected YYYY-MM-DD")
		}
		doc.ExpectedGoLiveDate = &t
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// touchedFields lists each updated field once, in first-seen order.
func touchedFields(updates []FieldUpdate) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range updates {
		name := strings.ToLower(strings.TrimSpace(u.Field))
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func fieldValue(doc domain.ScopeDocument, name string) any {
	switch name {
	case fieldComesFromMor:
		return doc.ComesFromMor
	case fieldDealClosedBy:
		return doc.DealClosedBy
	}
	f, _ := domain.ParseScopeField(name)
	return doc.Value(f)
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
