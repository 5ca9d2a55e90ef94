package shared

import "errors"

var (
	// ErrNotFound indicates the targeted record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a unique constraint violation, e.g. a duplicate document number.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition indicates a state change the active policy disallows.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTxConflict indicates a concurrent write was detected; the caller may retry the operation.
	ErrTxConflict = errors.New("transaction conflict")
)
