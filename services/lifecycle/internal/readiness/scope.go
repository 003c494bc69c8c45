// Package readiness scores how far a merchant is from leaving its current stage.
package readiness

import (
	"math"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type FieldReadiness struct {
	Field      domain.ScopeField  `json:"field"`
	Label      string             `json:"label"`
	Status     domain.FieldStatus `json:"status"`
	IsCritical bool               `json:"is_critical"`
}

type ScopeReadinessResult struct {
	Score                 int                 `json:"score"`
	TotalFields           int                 `json:"total_fields"`
	CompletedFields       int                 `json:"completed_fields"`
	MissingFields         int                 `json:"missing_fields"`
	PartialFields         int                 `json:"partial_fields"`
	FieldStatuses         []FieldReadiness    `json:"field_statuses"`
	CriticalFieldsReady   bool                `json:"critical_fields_ready"`
	MissingCriticalFields []domain.ScopeField `json:"missing_critical_fields"`
}

// CalculateScopeReadiness gives each COMPLETE field 100 points and everything else
// nothing, including PARTIAL. Completed, partial and missing counts always add up to
// TotalFields.
func CalculateScopeReadiness(statuses domain.FieldStatuses) ScopeReadinessResult {
	res := ScopeReadinessResult{
		TotalFields:           len(domain.TrackedFields),
		FieldStatuses:         make([]FieldReadiness, 0, len(domain.TrackedFields)),
		CriticalFieldsReady:   true,
		MissingCriticalFields: []domain.ScopeField{},
	}
	sum := 0
	for _, f := range domain.TrackedFields {
		st := statuses.Get(f)
		if st == "" {
			st = domain.FieldMissing
		}
		res.FieldStatuses = append(res.FieldStatuses, FieldReadiness{
			Field:      f,
			Label:      f.Label(),
			Status:     st,
			IsCritical: f.IsCritical(),
		})
		switch {
		case st == domain.FieldComplete:
			sum += 100
			res.CompletedFields++
		case st.IsMissing():
			res.MissingFields++
		default:
			res.PartialFields++
		}
		if f.IsCritical() && st.IsMissing() {
			res.CriticalFieldsReady = false
			res.MissingCriticalFields = append(res.MissingCriticalFields, f)
		}
	}
	res.Score = roundScore(sum, res.TotalFields)
	return res
}

func roundScore(total, n int) int {
	if n == 0 {
		return 100
	}
	return int(math.Round(float64(total) / float64(n)))
}
