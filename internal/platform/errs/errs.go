// Package errs defines the error taxonomy shared by every bounded context.
// Domain packages wrap these sentinels so callers can classify failures with
// errors.Is without knowing which store produced them.
package errs

import "errors"

var (
	// ErrNotFound indicates the referenced register or document is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrTransient indicates a retryable storage failure (lock contention, deadlock).
	ErrTransient = errors.New("transient storage error")
)

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is classified as a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
