/*
errors.go - Centralized error types for the back-office engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Input errors - invalid quantity, invalid config, schema violations
  2. Workflow errors - transitions attempted from a non-source state
  3. Lookup errors - unknown ids
  4. Store errors - unique keys, optimistic version checks

USAGE:
  Callers match with errors.Is and never compare messages:

    if errors.Is(err, generic.ErrNotInTransit) {
        // the order was already received
    }

SEE ALSO:
  - validate.go: ValidationError from schema checks
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned for a quantity <= 0.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidConfig is returned for a non-positive week count or a malformed date.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidTransition is returned when a workflow operation is attempted
	// from a state that is not its source state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound is returned for an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrNotInTransit is returned when a receipt is confirmed on a movement
	// that is not currently in transit.
	ErrNotInTransit = errors.New("movement not in transit")

	// ErrForbidden is returned when a delete or mutation is attempted outside
	// its allowed state or by someone who does not own the document.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned when a document fails schema validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the collection and id that were looked up.
type NotFoundError struct {
	Collection Collection
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand used by stores.
func NotFound(c Collection, id string) error {
	return &NotFoundError{Collection: c, ID: id}
}

// TransitionError records an action attempted from the wrong state.
type TransitionError struct {
	ID     string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %q from state %s", e.Action, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError names the field that failed a schema rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the error reflects the current state of a document.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotInTransit) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
