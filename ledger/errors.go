/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error categories in one place. Callers classify with errors.Is and
  the helper predicates; the API layer maps categories onto HTTP status.

ERROR CATEGORIES:
  1. Validation - invalid input, rejected before any write
  2. Not found  - referenced customer/item/demand absent
  3. Conflict   - write refused by the store (uniqueness, stale status)
  4. Transient  - store unreachable; safe to retry

SEE ALSO:
  - engine.go: returns validation/not-found errors before any write
  - store/sqlite: maps driver failures onto these sentinels
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for invalid input. Nothing is written.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when the store refuses a write, e.g. a
	// uniqueness violation on customer UID or a demand that is no longer
	// pending.
	ErrConflict = errors.New("write conflict")

	// ErrTransientIO is returned when the store is unreachable. The
	// operation did not complete and may be retried.
	ErrTransientIO = errors.New("transient store failure")

	// ErrOrderingClosed is returned when a pre-order is submitted outside
	// the daily ordering window. A validation error: no demand is created.
	ErrOrderingClosed = fmt.Errorf("%w: ordering window is closed", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which input field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "customer", "inventory item", "demand", "setting"
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a refused write.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientIO)
}
