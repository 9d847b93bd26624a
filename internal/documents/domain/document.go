package documents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"backoffice/internal/platform/errs"
	references "backoffice/internal/references/domain"
)

var (
	// ErrDocumentNotFound is returned when no document has the requested reference.
	ErrDocumentNotFound = fmt.Errorf("documents: %w", errs.ErrNotFound)
	// ErrDuplicateReference is returned when a reference is already taken.
	ErrDuplicateReference = fmt.Errorf("documents: duplicate reference: %w", errs.ErrConflict)
	// ErrNegativeAmount is returned when a document amount is below zero.
	ErrNegativeAmount = fmt.Errorf("documents: negative amount: %w", errs.ErrValidation)
	// ErrAmountPrecision is returned when an amount has sub-cent digits.
	ErrAmountPrecision = fmt.Errorf("documents: amount carries at most 2 decimals: %w", errs.ErrValidation)
	// ErrInvalidAttributes is returned when attributes are not a JSON object.
	ErrInvalidAttributes = fmt.Errorf("documents: attributes must be a JSON object: %w", errs.ErrValidation)
	// ErrUnknownDocumentType is returned for an unsupported document type slug.
	ErrUnknownDocumentType = fmt.Errorf("documents: unknown document type: %w", errs.ErrValidation)
)

// Document is a business document carrying an immutable reference.
type Document struct {
	ID             int64           `json:"id"`
	Kind           references.Kind `json:"kind"`
	Reference      string          `json:"reference"`
	IssuedYear     int             `json:"issued_year"`
	DateOp         time.Time       `json:"date_op"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ActorID        string          `json:"actor_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Label          string          `json:"label"`
	Attributes     json.RawMessage `json:"attributes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

var slugs = map[string]references.Kind{
	"purchase-orders": references.KindPurchaseOrder,
	"quotations":      references.KindQuotation,
	"invoices":        references.KindInvoice,
	"payments":        references.KindPayment,
	"expenses":        references.KindExpense,
}

// KindForSlug maps a URL document type to its reference kind.
func KindForSlug(slug string) (references.Kind, error) {
	kind, ok := slugs[slug]
	if !ok {
		return "", ErrUnknownDocumentType
	}
	return kind, nil
}

// SlugForKind is the inverse of KindForSlug.
func SlugForKind(kind references.Kind) string {
	for slug, k := range slugs {
		if k == kind {
			return slug
		}
	}
	return ""
}
