package domain

import (
	"strings"
	"time"
)

type ImplementationStatus string

const (
	ImplPending     ImplementationStatus = "PENDING"
	ImplInProgress  ImplementationStatus = "IN_PROGRESS"
	ImplLive        ImplementationStatus = "LIVE"
	ImplBlocked     ImplementationStatus = "BLOCKED"
	ImplNotRequired ImplementationStatus = "NOT_REQUIRED"
)

func (s ImplementationStatus) Valid() bool {
	switch s {
	case ImplPending, ImplInProgress, ImplLive, ImplBlocked, ImplNotRequired:
		return true
	}
	return false
}

// Resolved reports whether the item no longer blocks a move to LIVE.
func (s ImplementationStatus) Resolved() bool {
	return s == ImplLive || s == ImplNotRequired
}

// Weight is the readiness credit of one item.
func (s ImplementationStatus) Weight() int {
	switch s {
	case ImplLive, ImplNotRequired:
		return 100
	case ImplInProgress:
		return 50
	}
	return 0
}

// ImplementationState is shared by PSP and payment-method rows.
type ImplementationState struct {
	Status            ImplementationStatus `json:"status"`
	PlatformSupported bool                 `json:"platform_supported"`
	BlockedReason     string               `json:"blocked_reason,omitempty"`
	NotRequiredReason string               `json:"not_required_reason,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	StartedAt         *time.Time           `json:"started_at,omitempty"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

type MerchantPspImplementation struct {
	ImplementationID string `json:"implementation_id"`
	MerchantID       string `json:"merchant_id"`
	ProcessorID      string `json:"processor_id"`
	ImplementationState
}

type MerchantPaymentMethodImplementation struct {
	ImplementationID string `json:"implementation_id"`
	MerchantID       string `json:"merchant_id"`
	PaymentMethod    string `json:"payment_method"`
	ImplementationState
}

// StatusUpdate is an operator change to one implementation row.
type StatusUpdate struct {
	Status            ImplementationStatus `json:"status"`
	BlockedReason     string               `json:"blocked_reason,omitempty"`
	NotRequiredReason string               `json:"not_required_reason,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
}

func (u StatusUpdate) Validate() error {
	if !u.Status.Valid() {
		return NewValidationError("status", "unknown implementation status "+string(u.Status))
	}
	if u.Status == ImplBlocked && strings.TrimSpace(u.BlockedReason) == "" {
		return NewValidationError("blocked_reason", "required when status is BLOCKED")
	}
	if u.Status == ImplNotRequired && strings.TrimSpace(u.NotRequiredReason) == "" {
		return NewValidationError("not_required_reason", "required when status is NOT_REQUIRED")
	}
	return nil
}

// Apply moves st to the update's status and maintains reasons and timestamps.
func (st ImplementationState) Apply(u StatusUpdate, now time.Time) ImplementationState {
	out := st
	out.Status = u.Status
	out.BlockedReason = ""
	out.NotRequiredReason = ""
	switch u.Status {
	case ImplBlocked:
		out.BlockedReason = strings.TrimSpace(u.BlockedReason)
	case ImplNotRequired:
		out.NotRequiredReason = strings.TrimSpace(u.NotRequiredReason)
	}
	if u.Notes != nil {
		out.Notes = strings.TrimSpace(*u.Notes)
	}
	if u.Status == ImplInProgress && out.StartedAt == nil {
		t := now
		out.StartedAt = &t
	}
	if u.Status.Resolved() {
		t := now
		out.CompletedAt = &t
	} else {
		out.CompletedAt = nil
	}
	out.UpdatedAt = now
	return out
}
