package references

import (
	"fmt"

	"backoffice/internal/platform/errs"
)

var (
	// ErrInvalidKind is returned for an unknown document kind prefix.
	ErrInvalidKind = fmt.Errorf("references: invalid kind: %w", errs.ErrValidation)
	// ErrInvalidYear is returned for a year outside 1..9999.
	ErrInvalidYear = fmt.Errorf("references: invalid year: %w", errs.ErrValidation)
	// ErrMalformedReference is returned when a reference string cannot be parsed.
	ErrMalformedReference = fmt.Errorf("references: malformed reference: %w", errs.ErrValidation)
)
