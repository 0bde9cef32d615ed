package approvalflow

import (
	"errors"
	"fmt"
)

// Request errors
var (
	// ErrRequestNotFound indicates the request does not exist
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestTerminal indicates the request is in a terminal status
	ErrRequestTerminal = errors.New("request is in a terminal status")

	// ErrInvalidTransition indicates an illegal status transition
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleStatus indicates the request status changed since it was read
	ErrStaleStatus = errors.New("request status is stale")

	// ErrStageNotRequired indicates the acted-on stage is not part of the request's stage list
	ErrStageNotRequired = errors.New("stage not required for this request")

	// ErrNotReturned indicates a resubmission was attempted on a request that is not returned
	ErrNotReturned = errors.New("request is not returned")
)

// Policy errors
var (
	// ErrNoStagesRequired indicates the stage policy produced an empty stage list
	ErrNoStagesRequired = errors.New("no approval stages required")

	// ErrUnknownStage indicates a stage name outside the fixed stage set
	ErrUnknownStage = errors.New("unknown approval stage")

	// ErrReturnNotPermitted indicates the actor's role may not return requests
	ErrReturnNotPermitted = errors.New("role may not return requests")
)

// Budget errors
var (
	// ErrNoBudgetChanges indicates a save was attempted with an empty edit set
	ErrNoBudgetChanges = errors.New("no budget changes to save")

	// ErrUnknownExpenseItem indicates an edit referenced an item not in the breakdown
	ErrUnknownExpenseItem = errors.New("unknown expense item")

	// ErrNegativeAmount indicates a negative amount was supplied for an item
	ErrNegativeAmount = errors.New("expense amount cannot be negative")
)

// Creation errors
var (
	// ErrMaxAttemptsExceeded indicates the creation attempt budget was exhausted
	ErrMaxAttemptsExceeded = errors.New("max creation attempts exceeded")

	// ErrOutcomeUnknown indicates a transport failure left the prior attempt's
	// outcome unknown; the caller must decide whether to retry
	ErrOutcomeUnknown = errors.New("outcome of prior attempt unknown")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a precondition failure on a named input field.
// It is always surfaced to the actor immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation returns true if err is a field-level validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
