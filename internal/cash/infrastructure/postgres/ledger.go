package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	cash "backoffice/internal/cash/domain"
	"backoffice/internal/platform/database"
)

const defaultTransactionsTable = "cash_transactions"

// Ledger stores movements in Postgres. Rows are never updated or deleted.
type Ledger struct {
	db    *sql.DB
	table string
}

// NewLedger constructs a ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, table: defaultTransactionsTable}
}

// Append inserts tx and fills its id and created_at. created_at is the
// statement time, not the transaction start, so a movement that waited on a
// concurrent close is stamped after that close.
func (l *Ledger) Append(ctx context.Context, tx *cash.Transaction) error {
	if l == nil || l.db == nil {
		return errors.New("ledger: nil db")
	}
	err := database.Conn(ctx, l.db).QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %s (register_id, direction, amount, description, op_date, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
RETURNING id, created_at`, l.table),
		tx.RegisterID, string(tx.Direction), tx.Amount, tx.Description, tx.OpDate, tx.ActorID,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return database.Classify(err)
	}
	return nil
}

// Get returns nil when id is unknown.
func (l *Ledger) Get(ctx context.Context, id int64) (*cash.Transaction, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("ledger: nil db")
	}
	row := database.Conn(ctx, l.db).QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, register_id, direction, amount, description, op_date, actor_id, created_at
FROM %s
WHERE id = $1`, l.table), id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return tx, nil
}

// ListByRegister returns movements in insertion order.
func (l *Ledger) ListByRegister(ctx context.Context, registerID int64) ([]cash.Transaction, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("ledger: nil db")
	}
	rows, err := database.Conn(ctx, l.db).QueryContext(ctx, fmt.Sprintf(`
SELECT id, register_id, direction, amount, description, op_date, actor_id, created_at
FROM %s
WHERE register_id = $1
ORDER BY id ASC`, l.table), registerID)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	out := make([]cash.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

// Totals sums the movements of a register in the database.
func (l *Ledger) Totals(ctx context.Context, registerID int64) (cash.Totals, error) {
	if l == nil || l.db == nil {
		return cash.Totals{}, errors.New("ledger: nil db")
	}
	var in, out decimal.Decimal
	err := database.Conn(ctx, l.db).QueryRowContext(ctx, fmt.Sprintf(`
SELECT
	COALESCE(SUM(amount) FILTER (WHERE direction = 'in'), 0),
	COALESCE(SUM(amount) FILTER (WHERE direction = 'out'), 0)
FROM %s
WHERE register_id = $1`, l.table), registerID).Scan(&in, &out)
	if err != nil {
		return cash.Totals{}, database.Classify(err)
	}
	return cash.Totals{In: in, Out: out}, nil
}

func scanTransaction(row rowScanner) (*cash.Transaction, error) {
	var (
		tx        cash.Transaction
		direction string
	)
	if err := row.Scan(
		&tx.ID,
		&tx.RegisterID,
		&direction,
		&tx.Amount,
		&tx.Description,
		&tx.OpDate,
		&tx.ActorID,
		&tx.CreatedAt,
	); err != nil {
		return nil, err
	}
	tx.Direction = cash.Direction(direction)
	tx.OpDate = cash.BusinessDate(tx.OpDate)
	return &tx, nil
}
