package references

import (
	"fmt"
	"strconv"
	"strings"
)

// minSeqWidth is the zero-padded width of the sequence part. Wider values
// (1000 and up) are rendered in full, never truncated.
const minSeqWidth = 3

// Reference is a year-scoped sequential document code such as INV-2025-037.
type Reference struct {
	Kind Kind
	Year int
	Seq  int
}

// New validates and builds a reference.
func New(kind Kind, year, seq int) (Reference, error) {
	if !kind.Valid() {
		return Reference{}, ErrInvalidKind
	}
	if year < 1 || year > 9999 {
		return Reference{}, ErrInvalidYear
	}
	if seq < 1 {
		return Reference{}, fmt.Errorf("%w: sequence %d", ErrMalformedReference, seq)
	}
	return Reference{Kind: kind, Year: year, Seq: seq}, nil
}

// String renders {PREFIX}-{YEAR}-{SEQ:03d}.
func (r Reference) String() string {
	return fmt.Sprintf("%s-%d-%0*d", r.Kind, r.Year, minSeqWidth, r.Seq)
}

// Parse strictly parses a reference string.
func Parse(value string) (Reference, error) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 3 {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, value)
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, value)
	}
	if !isDigits(parts[1]) || !isDigits(parts[2]) {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, value)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, value)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, value)
	}
	return New(kind, year, seq)
}

// LastSequence extracts the numeric suffix of a previously issued reference.
// It only requires three hyphen-separated parts with an all-digit last part;
// anything else is reported as malformed (ok == false) so that issuance can
// restart the year at 001 instead of failing.
func LastSequence(value string) (seq int, ok bool) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 || !isDigits(parts[2]) {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return seq, true
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SeedFromLast returns the sequence already consumed in a year given the
// newest reference on record for it. No history seeds 0. Malformed history
// also seeds 0 and reports fallback, restarting the year at 001.
func SeedFromLast(last string, found bool) (seq int, fallback bool) {
	if !found {
		return 0, false
	}
	seq, ok := LastSequence(last)
	if !ok {
		return 0, true
	}
	return seq, false
}
