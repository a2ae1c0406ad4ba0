package coordinator

import "errors"

var (
	// ErrValidation marks a request the caller must fix.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks an operation that does not fit the task's current status.
	ErrConflict = errors.New("conflict")
)
