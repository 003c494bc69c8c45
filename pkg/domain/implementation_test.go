package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStatusUpdateValidateRequiresReasons(t *testing.T) {
	var verr *ValidationError
	err := StatusUpdate{Status: ImplBlocked}.Validate()
	if !errors.As(err, &verr) || verr.Field != "blocked_reason" {
		t.Fatalf("expected blocked_reason validation error, got %v", err)
	}
	err = StatusUpdate{Status: ImplNotRequired, NotRequiredReason: "  "}.Validate()
	if !errors.As(err, &verr) || verr.Field != "not_required_reason" {
		t.Fatalf("expected not_required_reason validation error, got %v", err)
	}
	if err := (StatusUpdate{Status: "DONE"}).Validate(); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
	if err := (StatusUpdate{Status: ImplBlocked, BlockedReason: "waiting on KYC"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestImplementationStateApplyTimestamps(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(48 * time.Hour)
	t2 := t1.Add(24 * time.Hour)

	st := ImplementationState{Status: ImplPending}
	st = st.Apply(StatusUpdate{Status: ImplInProgress}, t0)
	if st.StartedAt == nil || !st.StartedAt.Equal(t0) || st.CompletedAt != nil {
		t.Fatalf("expected started_at set on IN_PROGRESS, got %+v", st)
	}
	st = st.Apply(StatusUpdate{Status: ImplBlocked, BlockedReason: "acquirer contract"}, t1)
	if st.BlockedReason != "acquirer contract" || !st.StartedAt.Equal(t0) {
		t.Fatalf("unexpected state after BLOCKED: %+v", st)
	}
	st = st.Apply(StatusUpdate{Status: ImplLive}, t2)
	if st.CompletedAt == nil || !st.CompletedAt.Equal(t2) || st.BlockedReason != "" {
		t.Fatalf("expected completed LIVE row without reason, got %+v", st)
	}
	st = st.Apply(StatusUpdate{Status: ImplInProgress}, t2)
	if st.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared on reopen")
	}
}

func TestImplementationStatusWeights(t *testing.T) {
	want := map[ImplementationStatus]int{
		ImplLive: 100, ImplNotRequired: 100, ImplInProgress: 50, ImplPending: 0, ImplBlocked: 0,
	}
	for s, w := range want {
		if s.Weight() != w {
			t.Errorf("%s weight = %d, want %d", s, s.Weight(), w)
		}
	}
}
