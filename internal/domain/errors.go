package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every failure surfaced by the service layer wraps exactly
// one of these so transports can map it without inspecting messages.
var (
	// ErrValidation is returned when input fails validation before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the actor's role does not permit the operation.
	ErrForbidden = errors.New("operation not permitted")

	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the observed precondition no longer holds.
	// Callers must re-read before retrying.
	ErrConflict = errors.New("conflict")

	// ErrTransient is returned for storage or broker failures that are safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// Field-level validation errors. They wrap ErrValidation.
var (
	ErrInvalidID          = fmt.Errorf("%w: invalid ID", ErrValidation)
	ErrInvalidSignature   = fmt.Errorf("%w: signature must be two letters", ErrValidation)
	ErrInvalidUrgency     = fmt.Errorf("%w: unknown urgency", ErrValidation)
	ErrInvalidCategory    = fmt.Errorf("%w: unknown category", ErrValidation)
	ErrEmptyDescription   = fmt.Errorf("%w: description cannot be empty", ErrValidation)
	ErrDescriptionTooLong = fmt.Errorf("%w: description too long", ErrValidation)
	ErrEmptyReason        = fmt.Errorf("%w: rejection reason cannot be empty", ErrValidation)
	ErrReasonTooLong      = fmt.Errorf("%w: rejection reason too long", ErrValidation)
	ErrInvalidTarget      = fmt.Errorf("%w: unsupported target state", ErrValidation)
	ErrUnknownFleet       = fmt.Errorf("%w: unknown fleet", ErrValidation)
	ErrInvalidPeriod      = fmt.Errorf("%w: month and year must be given together", ErrValidation)
)

// ErrInvalidTransition is returned for a lifecycle pair missing from the
// transition table. It is a conflict: the stored state moved or never
// allowed the requested target.
var ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", ErrConflict)

// ValidationError carries the offending field alongside the wrapped cause.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError. A nil err defaults to ErrValidation.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
