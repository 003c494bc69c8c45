package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldStatus is the completeness of one tracked scope attribute. PARTIAL is part of
// the stored and UI contract but DetermineFieldStatus never emits it, and scoring
// gives it no credit.
type FieldStatus string

const (
	FieldMissing  FieldStatus = "MISSING"
	FieldPartial  FieldStatus = "PARTIAL"
	FieldComplete FieldStatus = "COMPLETE"
)

// IsMissing treats an unset status as MISSING.
func (s FieldStatus) IsMissing() bool {
	return s == "" || s == FieldMissing
}

type ScopeField string

const (
	FieldPsps                   ScopeField = "psps"
	FieldCountries              ScopeField = "countries"
	FieldPaymentMethods         ScopeField = "payment_methods"
	FieldExpectedVolume         ScopeField = "expected_volume"
	FieldExpectedApprovalRate   ScopeField = "expected_approval_rate"
	FieldRestrictions           ScopeField = "restrictions"
	FieldDependencies           ScopeField = "dependencies"
	FieldComplianceRequirements ScopeField = "compliance_requirements"
	FieldExpectedGoLiveDate     ScopeField = "expected_go_live_date"
)

// TrackedFields lists the status-bearing scope fields in display order.
var TrackedFields = []ScopeField{
	FieldPsps,
	FieldCountries,
	FieldPaymentMethods,
	FieldExpectedVolume,
	FieldExpectedApprovalRate,
	FieldRestrictions,
	FieldDependencies,
	FieldComplianceRequirements,
	FieldExpectedGoLiveDate,
}

// CriticalFields must all be non-missing before a merchant leaves SCOPING.
var CriticalFields = []ScopeField{FieldPsps, FieldCountries, FieldPaymentMethods}

var fieldLabels = map[ScopeField]string{
	FieldPsps:                   "PSPs",
	FieldCountries:              "Countries",
	FieldPaymentMethods:         "Payment Methods",
	FieldExpectedVolume:         "Expected Volume",
	FieldExpectedApprovalRate:   "Expected Approval Rate",
	FieldRestrictions:           "Restrictions",
	FieldDependencies:           "Dependencies",
	FieldComplianceRequirements: "Compliance Requirements",
	FieldExpectedGoLiveDate:     "Expected Go-Live Date",
}

func (f ScopeField) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

func (f ScopeField) IsCritical() bool {
	for _, c := range CriticalFields {
		if c == f {
			return true
		}
	}
	return false
}

func (f ScopeField) IsArray() bool {
	switch f {
	case FieldPsps, FieldCountries, FieldPaymentMethods, FieldRestrictions, FieldDependencies, FieldComplianceRequirements:
		return true
	}
	return false
}

func ParseScopeField(raw string) (ScopeField, bool) {
	f := ScopeField(raw)
	_, ok := fieldLabels[f]
	return f, ok
}

type FieldStatuses struct {
	Psps                   FieldStatus `json:"psps_status"`
	Countries              FieldStatus `json:"countries_status"`
	PaymentMethods         FieldStatus `json:"payment_methods_status"`
	ExpectedVolume         FieldStatus `json:"expected_volume_status"`
	ExpectedApprovalRate   FieldStatus `json:"expected_approval_rate_status"`
	Restrictions           FieldStatus `json:"restrictions_status"`
	Dependencies           FieldStatus `json:"dependencies_status"`
	ComplianceRequirements FieldStatus `json:"compliance_requirements_status"`
	ExpectedGoLiveDate     FieldStatus `json:"expected_go_live_date_status"`
}

func (s FieldStatuses) Get(f ScopeField) FieldStatus {
	if p := s.ptr(f); p != nil {
		return *p
	}
	return FieldMissing
}

func (s *FieldStatuses) Set(f ScopeField, v FieldStatus) {
	if p := s.ptr(f); p != nil {
		*p = v
	}
}

func (s *FieldStatuses) ptr(f ScopeField) *FieldStatus {
	switch f {
	case FieldPsps:
		return &s.Psps
	case FieldCountries:
		return &s.Countries
	case FieldPaymentMethods:
		return &s.PaymentMethods
	case FieldExpectedVolume:
		return &s.ExpectedVolume
	case FieldExpectedApprovalRate:
		return &s.ExpectedApprovalRate
	case FieldRestrictions:
		return &s.Restrictions
	case FieldDependencies:
		return &s.Dependencies
	case FieldComplianceRequirements:
		return &s.ComplianceRequirements
	case FieldExpectedGoLiveDate:
		return &s.ExpectedGoLiveDate
	}
	return nil
}

func AllMissing() FieldStatuses {
	var s FieldStatuses
	for _, f := range TrackedFields {
		s.Set(f, FieldMissing)
	}
	return s
}

type ScopeDocument struct {
	ScopeID                string              `json:"scope_id"`
	MerchantID             string              `json:"merchant_id"`
	Psps                   []string            `json:"psps"`
	Countries              []string            `json:"countries"`
	PaymentMethods         []string            `json:"payment_methods"`
	Restrictions           []string            `json:"restrictions"`
	Dependencies           []string            `json:"dependencies"`
	ComplianceRequirements []string            `json:"compliance_requirements"`
	ExpectedVolume         decimal.NullDecimal `json:"expected_volume"`
	ExpectedApprovalRate   decimal.NullDecimal `json:"expected_approval_rate"`
	ExpectedGoLiveDate     *time.Time          `json:"expected_go_live_date,omitempty"`
	ComesFromMor           *bool               `json:"comes_from_mor,omitempty"`
	DealClosedBy           string              `json:"deal_closed_by,omitempty"`
	Statuses               FieldStatuses       `json:"statuses"`
	IsComplete             bool                `json:"is_complete"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// NewScopeDocument returns an empty document with every tracked field MISSING.
func NewScopeDocument(merchantID string) ScopeDocument {
	return ScopeDocument{MerchantID: merchantID, Statuses: AllMissing()}
}

// Clone returns a deep copy that shares no slices or pointers with d.
func (d ScopeDocument) Clone() ScopeDocument {
	out := d
	out.Psps = cloneStrings(d.Psps)
	out.Countries = cloneStrings(d.Countries)
	out.PaymentMethods = cloneStrings(d.PaymentMethods)
	out.Restrictions = cloneStrings(d.Restrictions)
	out.Dependencies = cloneStrings(d.Dependencies)
	out.ComplianceRequirements = cloneStrings(d.ComplianceRequirements)
	if d.ExpectedGoLiveDate != nil {
		t := *d.ExpectedGoLiveDate
		out.ExpectedGoLiveDate = &t
	}
	if d.ComesFromMor != nil {
		b := *d.ComesFromMor
		out.ComesFromMor = &b
	}
	return out
}

// Value returns the raw value behind a tracked field.
func (d ScopeDocument) Value(f ScopeField) any {
	switch f {
	case FieldPsps:
		return d.Psps
	case FieldCountries:
		return d.Countries
	case FieldPaymentMethods:
		return d.PaymentMethods
	case FieldRestrictions:
		return d.Restrictions
	case FieldDependencies:
		return d.Dependencies
	case FieldComplianceRequirements:
		return d.ComplianceRequirements
	case FieldExpectedVolume:
		return d.ExpectedVolume
	case FieldExpectedApprovalRate:
		return d.ExpectedApprovalRate
	case FieldExpectedGoLiveDate:
		return d.ExpectedGoLiveDate
	}
	return nil
}

// Strings returns the array behind f, or nil for scalar fields.
func (d *ScopeDocument) Strings(f ScopeField) *[]string {
	switch f {
	case FieldPsps:
		return &d.Psps
	case FieldCountries:
		return &d.Countries
	case FieldPaymentMethods:
		return &d.PaymentMethods
	case FieldRestrictions:
		return &d.Restrictions
	case FieldDependencies:
		return &d.Dependencies
	case FieldComplianceRequirements:
		return &d.ComplianceRequirements
	}
	return nil
}

// Recompute refreshes every status and IsComplete from the current values.
func (d *ScopeDocument) Recompute() {
	for _, f := range TrackedFields {
		d.Statuses.Set(f, DetermineFieldStatus(d.Value(f)))
	}
	d.IsComplete = CalculateIsComplete(d.Statuses)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
