package domain

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// DetermineFieldStatus reports MISSING for nil, nil pointers, empty slices and blank
// strings, and COMPLETE for everything else.
func DetermineFieldStatus(value any) FieldStatus {
	switch v := value.(type) {
	case nil:
		return FieldMissing
	case string:
		if strings.TrimSpace(v) == "" {
			return FieldMissing
		}
		return FieldComplete
	case []string:
		if len(v) == 0 {
			return FieldMissing
		}
		return FieldComplete
	case decimal.NullDecimal:
		if !v.Valid {
			return FieldMissing
		}
		return FieldComplete
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return FieldMissing
		}
		return DetermineFieldStatus(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map:
		if rv.Len() == 0 {
			return FieldMissing
		}
	}
	return FieldComplete
}

// MergeArrayValues returns the set union of existing and incoming. Blank entries are
// dropped and entries differing only in case or surrounding space count once.
func MergeArrayValues(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			k := normalizeKey(v)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func CalculateIsComplete(s FieldStatuses) bool {
	for _, f := range CriticalFields {
		if s.Get(f).IsMissing() {
			return false
		}
	}
	return true
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeKey is the comparison form used for PSP ids and payment method names.
func NormalizeKey(v string) string { return normalizeKey(v) }
