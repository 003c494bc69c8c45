package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDetermineFieldStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var nilTime *time.Time
	var nilSlice []string
	tests := []struct {
		name  string
		value any
		want  FieldStatus
	}{
		{"nil", nil, FieldMissing},
		{"empty string", "", FieldMissing},
		{"whitespace string", "  \t\n", FieldMissing},
		{"string", "stripe", FieldComplete},
		{"nil slice", nilSlice, FieldMissing},
		{"empty slice", []string{}, FieldMissing},
		{"slice", []string{"BR"}, FieldComplete},
		{"nil time pointer", nilTime, FieldMissing},
		{"time pointer", &now, FieldComplete},
		{"invalid decimal", decimal.NullDecimal{}, FieldMissing},
		{"decimal", decimal.NewNullDecimal(decimal.NewFromInt(1000)), FieldComplete},
		{"zero int", 0, FieldComplete},
		{"false", false, FieldComplete},
		{"empty map", map[string]string{}, FieldMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineFieldStatus(tt.value); got != tt.want {
				t.Errorf("DetermineFieldStatus(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDetermineFieldStatusNeverPartial(t *testing.T) {
	for _, v := range []any{nil, "", "x", []string{}, []string{"a"}, 1} {
		if DetermineFieldStatus(v) == FieldPartial {
			t.Fatalf("unexpected PARTIAL for %#v", v)
		}
	}
}

func TestMergeArrayValuesSetSemantics(t *testing.T) {
	got := MergeArrayValues([]string{"stripe", "Adyen", " "}, []string{"adyen", "dlocal", "stripe ", ""})
	want := map[string]bool{"stripe": true, "adyen": true, "dlocal": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[NormalizeKey(v)] {
			t.Fatalf("unexpected value %q in %v", v, got)
		}
	}
}

func TestMergeArrayValuesEmpty(t *testing.T) {
	if got := MergeArrayValues(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %v", got)
	}
}

func TestCalculateIsComplete(t *testing.T) {
	s := AllMissing()
	if CalculateIsComplete(s) {
		t.Fatalf("expected all-missing statuses to be incomplete")
	}
	s.Psps, s.Countries, s.PaymentMethods = FieldComplete, FieldComplete, FieldComplete
	if !CalculateIsComplete(s) {
		t.Fatalf("expected critical fields complete to be complete")
	}
	s.Countries = FieldPartial
	if !CalculateIsComplete(s) {
		t.Fatalf("expected PARTIAL to count as non-missing")
	}
	s.PaymentMethods = ""
	if CalculateIsComplete(s) {
		t.Fatalf("expected unset status to count as missing")
	}
}

func TestScopeDocumentCloneIsDeep(t *testing.T) {
	want := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	live := want
	mor := true
	doc := ScopeDocument{
		MerchantID:         "mrc_1",
		Psps:               []string{"stripe"},
		Countries:          []string{"BR"},
		PaymentMethods:     []string{"pix"},
		ExpectedGoLiveDate: &live,
		ComesFromMor:       &mor,
	}
	snap := doc.Clone()
	if !reflect.DeepEqual(doc, snap) {
		t.Fatalf("expected clone to be deep-equal")
	}
	doc.Psps[0] = "adyen"
	doc.Countries = append(doc.Countries, "MX")
	*doc.ExpectedGoLiveDate = want.AddDate(0, 1, 0)
	*doc.ComesFromMor = false
	if snap.Psps[0] != "stripe" || len(snap.Countries) != 1 {
		t.Fatalf("clone shares slices with original: %+v", snap)
	}
	if !snap.ExpectedGoLiveDate.Equal(want) || !*snap.ComesFromMor {
		t.Fatalf("clone shares pointers with original")
	}
}

func TestScopeDocumentRecompute(t *testing.T) {
	doc := NewScopeDocument("mrc_1")
	doc.Psps = []string{"stripe"}
	doc.Countries = []string{"BR"}
	doc.Recompute()
	if doc.IsComplete {
		t.Fatalf("expected incomplete without payment methods")
	}
	if doc.Statuses.Psps != FieldComplete || doc.Statuses.PaymentMethods != FieldMissing {
		t.Fatalf("unexpected statuses %+v", doc.Statuses)
	}
	doc.PaymentMethods = []string{"pix"}
	doc.ExpectedVolume = decimal.NewNullDecimal(decimal.NewFromInt(250000))
	doc.Recompute()
	if !doc.IsComplete || doc.Statuses.ExpectedVolume != FieldComplete {
		t.Fatalf("expected complete document, got %+v", doc.Statuses)
	}
}
