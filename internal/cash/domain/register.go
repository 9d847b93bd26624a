package cash

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a register.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Register is a daily cash-drawer session. At most one register is open at
// any time and there is at most one register per business date.
type Register struct {
	ID             int64               `json:"id"`
	BusinessDate   time.Time           `json:"business_date"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.NullDecimal `json:"closing_balance"`
	Status         Status              `json:"status"`
	OpenedAt       time.Time           `json:"opened_at"`
	ClosedAt       *time.Time          `json:"closed_at,omitempty"`
}

// IsOpen reports whether the register still accepts a close.
func (r *Register) IsOpen() bool {
	return r != nil && r.Status == StatusOpen
}

// Close fixes the closing balance and moves the register to closed.
func (r *Register) Close(closing decimal.Decimal, at time.Time) error {
	if !r.IsOpen() {
		return ErrRegisterClosed
	}
	closedAt := at.UTC()
	r.ClosingBalance = decimal.NewNullDecimal(closing)
	r.Status = StatusClosed
	r.ClosedAt = &closedAt
	return nil
}

// Direction tells whether a movement adds to or removes from the drawer.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection accepts "in" or "out" in any case.
func ParseDirection(value string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(value))); d {
	case DirectionIn, DirectionOut:
		return d, nil
	default:
		return "", ErrInvalidDirection
	}
}

// Transaction is an immutable ledger movement owned by one register.
type Transaction struct {
	ID          int64           `json:"id"`
	RegisterID  int64           `json:"register_id"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OpDate      time.Time       `json:"date"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the invariants of a new movement.
func (t Transaction) Validate() error {
	if t.RegisterID <= 0 {
		return ErrInvalidRegisterID
	}
	if _, err := ParseDirection(string(t.Direction)); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if !InCents(t.Amount) {
		return ErrAmountPrecision
	}
	return nil
}

// InCents reports whether d is stored exactly by a NUMERIC(14,2) column.
func InCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// Totals are the summed movements of one register.
type Totals struct {
	In  decimal.Decimal `json:"total_in"`
	Out decimal.Decimal `json:"total_out"`
}

// Add accumulates one movement.
func (t Totals) Add(tx Transaction) Totals {
	switch tx.Direction {
	case DirectionIn:
		t.In = t.In.Add(tx.Amount)
	case DirectionOut:
		t.Out = t.Out.Add(tx.Amount)
	}
	return t
}

// SumTransactions totals a set of movements.
func SumTransactions(txs []Transaction) Totals {
	totals := Totals{In: decimal.Zero, Out: decimal.Zero}
	for _, tx := range txs {
		totals = totals.Add(tx)
	}
	return totals
}

// Balance returns opening + in - out.
func Balance(opening decimal.Decimal, totals Totals) decimal.Decimal {
	return opening.Add(totals.In).Sub(totals.Out)
}

// BusinessDate truncates t to its calendar day in t's location and returns
// it as a UTC midnight, the form dates are stored in.
func BusinessDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
