package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	cash "backoffice/internal/cash/domain"
	"backoffice/internal/platform/database"
)

const (
	defaultRegistersTable = "cash_registers"

	// lifecycleLockKey is the advisory lock taken by open and close.
	lifecycleLockKey int64 = 0x63617368
)

// RegisterStore stores registers in Postgres.
type RegisterStore struct {
	db    *sql.DB
	table string
}

// NewRegisterStore constructs a register store.
func NewRegisterStore(db *sql.DB) *RegisterStore {
	return &RegisterStore{db: db, table: defaultRegistersTable}
}

// LockLifecycle takes a transaction-scoped advisory lock. It must run inside
// a transaction; outside one the lock would be released immediately.
func (s *RegisterStore) LockLifecycle(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("register store: nil db")
	}
	if _, ok := database.TxFromContext(ctx); !ok {
		return errors.New("register store: lifecycle lock outside transaction")
	}
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lifecycleLockKey)
	return database.Classify(err)
}

// Create inserts reg. The unique business date and the single-open index
// turn a racing duplicate into ErrRegisterExists.
func (s *RegisterStore) Create(ctx context.Context, reg *cash.Register) error {
	if s == nil || s.db == nil {
		return errors.New("register store: nil db")
	}
	err := database.Conn(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %s (business_date, opening_balance, status, opened_at)
VALUES ($1, $2, $3, $4)
RETURNING id`, s.table),
		reg.BusinessDate, reg.OpeningBalance, string(reg.Status), reg.OpenedAt,
	).Scan(&reg.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return cash.ErrRegisterExists
		}
		return database.Classify(err)
	}
	return nil
}

// Close writes the closing balance of reg if it is still open. closed_at is
// stamped by the database clock, the same clock that stamps movements, so
// movements committed after the close always sort after it.
func (s *RegisterStore) Close(ctx context.Context, reg *cash.Register) error {
	if s == nil || s.db == nil {
		return errors.New("register store: nil db")
	}
	var closedAt time.Time
	err := database.Conn(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(`
UPDATE %s
SET status = 'closed', closing_balance = $2, closed_at = clock_timestamp()
WHERE id = $1 AND status = 'open'
RETURNING closed_at`, s.table),
		reg.ID, reg.ClosingBalance,
	).Scan(&closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cash.ErrRegisterClosed
		}
		return database.Classify(err)
	}
	reg.ClosedAt = &closedAt
	return nil
}

// Get returns nil when id is unknown.
func (s *RegisterStore) Get(ctx context.Context, id int64) (*cash.Register, error) {
	return s.queryOne(ctx, "WHERE id = $1", id)
}

// GetShared locks the register row in share mode, which waits for and then
// blocks a concurrent close of the same register.
func (s *RegisterStore) GetShared(ctx context.Context, id int64) (*cash.Register, error) {
	return s.queryOne(ctx, "WHERE id = $1 FOR SHARE", id)
}

// FindByDate returns the register of date, if any.
func (s *RegisterStore) FindByDate(ctx context.Context, date time.Time) (*cash.Register, error) {
	return s.queryOne(ctx, "WHERE business_date = $1", date)
}

// FindOpen returns the open register, locked for update inside a transaction.
func (s *RegisterStore) FindOpen(ctx context.Context) (*cash.Register, error) {
	if _, ok := database.TxFromContext(ctx); ok {
		return s.queryOne(ctx, "WHERE status = 'open' FOR UPDATE")
	}
	return s.queryOne(ctx, "WHERE status = 'open'")
}

// Latest returns the register with the newest business date.
func (s *RegisterStore) Latest(ctx context.Context) (*cash.Register, error) {
	return s.queryOne(ctx, "ORDER BY business_date DESC LIMIT 1")
}

// List returns registers, newest business date first.
func (s *RegisterStore) List(ctx context.Context, limit int) ([]cash.Register, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("register store: nil db")
	}
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, s.selectSQL("ORDER BY business_date DESC LIMIT $1"), limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	out := make([]cash.Register, 0)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (s *RegisterStore) selectSQL(tail string) string {
	return fmt.Sprintf(`
SELECT id, business_date, opening_balance, closing_balance, status, opened_at, closed_at
FROM %s
%s`, s.table, tail)
}

func (s *RegisterStore) queryOne(ctx context.Context, tail string, args ...any) (*cash.Register, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("register store: nil db")
	}
	row := database.Conn(ctx, s.db).QueryRowContext(ctx, s.selectSQL(tail), args...)
	reg, err := scanRegister(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return reg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegister(row rowScanner) (*cash.Register, error) {
	var (
		reg      cash.Register
		status   string
		closedAt sql.NullTime
	)
	if err := row.Scan(
		&reg.ID,
		&reg.BusinessDate,
		&reg.OpeningBalance,
		&reg.ClosingBalance,
		&status,
		&reg.OpenedAt,
		&closedAt,
	); err != nil {
		return nil, err
	}
	reg.Status = cash.Status(status)
	reg.BusinessDate = cash.BusinessDate(reg.BusinessDate)
	if closedAt.Valid {
		t := closedAt.Time
		reg.ClosedAt = &t
	}
	return &reg, nil
}
