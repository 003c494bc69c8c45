package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMerchantNotFound       = errors.New("merchant not found")
	ErrImplementationNotFound = errors.New("implementation row not found")
	ErrMerchantLocked         = errors.New("merchant row locked by a concurrent transition")
	ErrStageChanged           = errors.New("merchant stage changed")
)

type InvalidTransitionError struct {
	From Stage
	To   Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func NewInvalidTransitionError(from, to Stage) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

// ValidationError reports a bad caller-supplied value. It is a user-facing outcome.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
