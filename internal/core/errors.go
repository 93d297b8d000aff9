package core

import "errors"

// Error kinds from the propagation policy: transient errors are retried
// inside the Model Gateway, parse errors fall back to local defaults,
// conflicts are silent no-ops, and fatal errors surface to the caller and
// fail the run.

// ErrConflict is returned by a store's conditional put when the
// (partition, sort) or uniqueness constraint is already satisfied by an
// existing item. Callers treat it as a silent skip, never a failure.
var ErrConflict = errors.New("conflict: item already exists")

// ErrNotFound is returned when a keyed lookup finds nothing.
var ErrNotFound = errors.New("not found")

// ErrTransient marks an error as retryable (network failure, 429, 5xx).
// Use fmt.Errorf("...: %w", ErrTransient) to tag an underlying cause.
var ErrTransient = errors.New("transient error")

// ErrParse marks a malformed LLM response that was locally recovered via
// a fallback default rather than propagated.
var ErrParse = errors.New("parse error")

// ErrFatal marks misconfiguration or auth failures: these surface to the
// caller and fail the run rather than being retried.
var ErrFatal = errors.New("fatal error")

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports whether err is (or wraps) ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatal reports whether err is (or wraps) ErrFatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
