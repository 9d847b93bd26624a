package database

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx attaches an open transaction to context.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction attached to context, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Conn returns the transaction carried by ctx, falling back to db.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// TxRunner runs units of work inside a single database transaction.
type TxRunner struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxRunner constructs a runner using read-committed transactions.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// InTx runs fn in a transaction. Nested calls join the outer transaction.
// The transaction commits only when fn returns nil.
func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.db == nil {
		return errors.New("tx runner: nil db")
	}
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return Classify(err)
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	return nil
}
