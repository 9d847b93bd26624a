package references

import "strings"

// Kind is the reference prefix of a business document kind.
type Kind string

const (
	KindPurchaseOrder Kind = "PO"
	KindQuotation     Kind = "PRO"
	KindInvoice       Kind = "INV"
	KindPayment       Kind = "REF"
	KindExpense       Kind = "EXP"
)

// Kinds lists every kind with an independent sequence.
func Kinds() []Kind {
	return []Kind{KindPurchaseOrder, KindQuotation, KindInvoice, KindPayment, KindExpense}
}

// Valid reports whether k is one of the enumerated prefixes.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchaseOrder, KindQuotation, KindInvoice, KindPayment, KindExpense:
		return true
	default:
		return false
	}
}

// ParseKind accepts a prefix in any case.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", ErrInvalidKind
	}
	return kind, nil
}
