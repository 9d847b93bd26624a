package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	documents "backoffice/internal/documents/domain"
	"backoffice/internal/platform/database"
	references "backoffice/internal/references/domain"
)

const defaultDocumentsTable = "documents"

// Repository stores documents in Postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, table: defaultDocumentsTable}
}

// Insert writes doc and fills its id and created_at. It joins the
// transaction carried by ctx so that the reserved reference and the row
// commit together.
func (r *Repository) Insert(ctx context.Context, doc *documents.Document) error {
	if r == nil || r.db == nil {
		return errors.New("documents repository: nil db")
	}
	if doc == nil {
		return errors.New("documents repository: nil document")
	}
	attributes := []byte(doc.Attributes)
	if len(attributes) == 0 {
		attributes = []byte(`{}`)
	}
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %s (kind, reference, issued_year, date_op, amount, currency, actor_id, counterparty_id, label, attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at`, r.table),
		string(doc.Kind),
		doc.Reference,
		doc.IssuedYear,
		doc.DateOp,
		doc.Amount.StringFixed(2),
		doc.Currency,
		doc.ActorID,
		doc.CounterpartyID,
		doc.Label,
		attributes,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", documents.ErrDuplicateReference, doc.Reference)
		}
		return database.Classify(err)
	}
	return nil
}

// GetByReference returns nil when no row matches.
func (r *Repository) GetByReference(ctx context.Context, reference string) (*documents.Document, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("documents repository: nil db")
	}
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, kind, reference, issued_year, date_op, amount, currency, actor_id, counterparty_id, label, attributes, created_at
FROM %s
WHERE reference = $1`, r.table), reference)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return doc, nil
}

// ListByKindYear returns documents newest first.
func (r *Repository) ListByKindYear(ctx context.Context, kind references.Kind, year int, limit int) ([]documents.Document, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("documents repository: nil db")
	}
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, fmt.Sprintf(`
SELECT id, kind, reference, issued_year, date_op, amount, currency, actor_id, counterparty_id, label, attributes, created_at
FROM %s
WHERE kind = $1 AND issued_year = $2
ORDER BY id DESC
LIMIT $3`, r.table), string(kind), year, limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	out := make([]documents.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*documents.Document, error) {
	var (
		doc        documents.Document
		kind       string
		amount     string
		attributes []byte
	)
	if err := row.Scan(
		&doc.ID,
		&kind,
		&doc.Reference,
		&doc.IssuedYear,
		&doc.DateOp,
		&amount,
		&doc.Currency,
		&doc.ActorID,
		&doc.CounterpartyID,
		&doc.Label,
		&attributes,
		&doc.CreatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("documents repository: amount %q: %w", amount, err)
	}
	doc.Kind = references.Kind(kind)
	doc.Amount = parsed
	doc.Attributes = attributes
	return &doc, nil
}
