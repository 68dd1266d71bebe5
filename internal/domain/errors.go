package domain

import "errors"

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable marks transient storage failures, including deadlines.
	// Callers may retry the whole operation.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflict reports a uniqueness race, e.g. two first-time inserts of the same vote.
	ErrConflict = errors.New("conflicting write")
)

// Retryable reports whether err is worth retrying as-is.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrConflict)
}
