package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterOpened is emitted when a register is created for a business date.
type RegisterOpened struct {
	RegisterID     int64           `json:"register_id"`
	BusinessDate   string          `json:"business_date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CarriedFrom    int64           `json:"carried_from,omitempty"`
	ActorID        string          `json:"actor_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// RegisterClosed is emitted when a register gets its closing balance. Forced
// marks a close performed by the next day's open.
type RegisterClosed struct {
	RegisterID     int64           `json:"register_id"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Forced         bool            `json:"forced"`
	ActorID        string          `json:"actor_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// TransactionRecorded is emitted for every appended ledger movement.
type TransactionRecorded struct {
	TransactionID int64           `json:"transaction_id"`
	RegisterID    int64           `json:"register_id"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	ActorID       string          `json:"actor_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
