// Package domain holds the merchant lifecycle model shared by the lifecycle service,
// its store and the operator CLI.
package domain

import "time"

type Stage string

const (
	StageScoping      Stage = "SCOPING"
	StageImplementing Stage = "IMPLEMENTING"
	StageLive         Stage = "LIVE"
)

func (s Stage) Valid() bool {
	switch s {
	case StageScoping, StageImplementing, StageLive:
		return true
	}
	return false
}

type Merchant struct {
	MerchantID          string    `json:"merchant_id"`
	Name                string    `json:"name"`
	ContactEmail        string    `json:"contact_email,omitempty"`
	ContactName         string    `json:"contact_name,omitempty"`
	LifecycleStage      Stage     `json:"lifecycle_stage"`
	SalesOwner          string    `json:"sales_owner,omitempty"`
	ImplementationOwner string    `json:"implementation_owner,omitempty"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type TransitionStatus string

const (
	TransitionApproved TransitionStatus = "APPROVED"
	TransitionRejected TransitionStatus = "REJECTED"
)

type RejectionCode string

const (
	RejectionValidationFailed        RejectionCode = "VALIDATION_FAILED"
	RejectionWarningsNotAcknowledged RejectionCode = "WARNINGS_NOT_ACKNOWLEDGED"
)

type WarningType string

const (
	WarningPspNotSupported           WarningType = "PSP_NOT_SUPPORTED"
	WarningPaymentMethodNotSupported WarningType = "PAYMENT_METHOD_NOT_SUPPORTED"
)

// TransitionWarning is an advisory finding that must be acknowledged before a
// transition executes. ProcessorID or PaymentMethod identifies the item, never both.
type TransitionWarning struct {
	Type          WarningType `json:"type"`
	Message       string      `json:"message"`
	ProcessorID   string      `json:"processor_id,omitempty"`
	PaymentMethod string      `json:"payment_method,omitempty"`
}

// Key identifies the warning for acknowledgement matching.
func (w TransitionWarning) Key() string {
	return string(w.Type) + "|" + normalizeKey(w.ProcessorID) + "|" + normalizeKey(w.PaymentMethod)
}

// StageTransition is written once per execute attempt and never updated.
type StageTransition struct {
	TransitionID         string              `json:"transition_id"`
	MerchantID           string              `json:"merchant_id"`
	FromStage            Stage               `json:"from_stage"`
	ToStage              Stage               `json:"to_stage"`
	Status               TransitionStatus    `json:"status"`
	TransitionedBy       string              `json:"transitioned_by"`
	ScopeSnapshot        *ScopeDocument      `json:"scope_snapshot,omitempty"`
	UserFeedback         string              `json:"user_feedback,omitempty"`
	WarningsAcknowledged []TransitionWarning `json:"warnings_acknowledged"`
	RejectionCode        RejectionCode       `json:"rejection_code,omitempty"`
	RejectionReason      string              `json:"rejection_reason,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}

type ChangeType string

const (
	ChangeCreate      ChangeType = "CREATE"
	ChangeUpdate      ChangeType = "UPDATE"
	ChangeStageChange ChangeType = "STAGE_CHANGE"
)

type ActorType string

const (
	ActorAI     ActorType = "AI"
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
)

func (a ActorType) Valid() bool {
	switch a {
	case ActorAI, ActorUser, ActorSystem:
		return true
	}
	return false
}

// Actor is the authenticated caller behind a mutation.
type Actor struct {
	ID   string    `json:"actor_id"`
	Type ActorType `json:"actor_type"`
}

type AuditLogEntry struct {
	AuditID     string     `json:"audit_id"`
	MerchantID  string     `json:"merchant_id"`
	TargetTable string     `json:"target_table"`
	TargetID    string     `json:"target_id"`
	TargetField string     `json:"target_field,omitempty"`
	ChangeType  ChangeType `json:"change_type"`
	OldValue    any        `json:"old_value,omitempty"`
	NewValue    any        `json:"new_value,omitempty"`
	ActorType   ActorType  `json:"actor_type"`
	ActorID     string     `json:"actor_id,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
