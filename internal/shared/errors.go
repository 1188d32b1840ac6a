package shared

import "errors"

var (
	// ErrValidation indicates malformed or rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent-update or uniqueness conflict.
	ErrConflict = errors.New("conflict")
)
