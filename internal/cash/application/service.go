package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	cash "backoffice/internal/cash/domain"
	"backoffice/internal/observability/metrics"
)

// RegisterStore persists registers. LockLifecycle must serialise open and
// close for the rest of the unit of work carried by ctx.
type RegisterStore interface {
	LockLifecycle(ctx context.Context) error
	Create(ctx context.Context, reg *cash.Register) error
	Close(ctx context.Context, reg *cash.Register) error
	Get(ctx context.Context, id int64) (*cash.Register, error)
	// GetShared returns the register and blocks a concurrent close of it
	// until the unit of work ends.
	GetShared(ctx context.Context, id int64) (*cash.Register, error)
	FindByDate(ctx context.Context, date time.Time) (*cash.Register, error)
	FindOpen(ctx context.Context) (*cash.Register, error)
	Latest(ctx context.Context) (*cash.Register, error)
	List(ctx context.Context, limit int) ([]cash.Register, error)
}

// Ledger is the append-only store of movements.
type Ledger interface {
	Append(ctx context.Context, tx *cash.Transaction) error
	Get(ctx context.Context, id int64) (*cash.Transaction, error)
	ListByRegister(ctx context.Context, registerID int64) ([]cash.Transaction, error)
	Totals(ctx context.Context, registerID int64) (cash.Totals, error)
}

// TxRunner runs fn inside one atomic unit of work.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher records domain events in the unit of work carried by ctx.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time in the business location.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RecordRequest describes a new ledger movement.
type RecordRequest struct {
	RegisterID  int64
	Direction   cash.Direction
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	ActorID     string
}

// Summary is a register with its live totals.
type Summary struct {
	Register *cash.Register  `json:"register"`
	Totals   cash.Totals     `json:"totals"`
	Balance  decimal.Decimal `json:"balance"`
}

// Statement is everything needed to render a register export.
type Statement struct {
	Summary
	Transactions []cash.Transaction `json:"transactions"`
}

// Service drives the register lifecycle and the ledger.
type Service struct {
	registers RegisterStore
	ledger    Ledger
	tx        TxRunner
	publisher Publisher
	clock     Clock
	logger    zerolog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithPublisher emits register and ledger events through publisher.
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithClock sets the clock that decides today's business date.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs a register service.
func NewService(registers RegisterStore, ledger Ledger, tx TxRunner, opts ...Option) (*Service, error) {
	if registers == nil {
		return nil, errors.New("cash service: nil register store")
	}
	if ledger == nil {
		return nil, errors.New("cash service: nil ledger")
	}
	if tx == nil {
		return nil, errors.New("cash service: nil tx runner")
	}
	s := &Service{registers: registers, ledger: ledger, tx: tx, clock: systemClock{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenRegister creates today's register. A register still open from an
// earlier day is closed first, and the newest previous register's closing
// balance becomes the opening balance. openingBalance is only used when no
// register exists yet.
func (s *Service) OpenRegister(ctx context.Context, openingBalance decimal.Decimal, actorID string) (*cash.Register, error) {
	start := time.Now()
	if openingBalance.IsNegative() {
		metrics.ObserveRegisterOp("open", metrics.ResultError, time.Since(start))
		return nil, cash.ErrNegativeOpeningBalance
	}
	if !cash.InCents(openingBalance) {
		metrics.ObserveRegisterOp("open", metrics.ResultError, time.Since(start))
		return nil, cash.ErrAmountPrecision
	}
	now := s.clock.Now()
	today := cash.BusinessDate(now)

	var opened *cash.Register
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.registers.LockLifecycle(ctx); err != nil {
			return err
		}
		existing, err := s.registers.FindByDate(ctx, today)
		if err != nil {
			return err
		}
		if existing != nil {
			return cash.ErrRegisterExists
		}

		stale, err := s.registers.FindOpen(ctx)
		if err != nil {
			return err
		}
		if stale != nil {
			if err := s.closeRegister(ctx, stale, now, true, actorID); err != nil {
				return err
			}
		}

		reg := &cash.Register{
			BusinessDate:   today,
			OpeningBalance: openingBalance,
			Status:         cash.StatusOpen,
			OpenedAt:       now.UTC(),
		}
		var carriedFrom int64
		prev, err := s.registers.Latest(ctx)
		if err != nil {
			return err
		}
		if prev != nil && prev.ClosingBalance.Valid {
			reg.OpeningBalance = prev.ClosingBalance.Decimal
			carriedFrom = prev.ID
		}
		if err := s.registers.Create(ctx, reg); err != nil {
			return err
		}
		if err := s.publish(ctx, RegisterOpened{
			RegisterID:     reg.ID,
			BusinessDate:   reg.BusinessDate.Format("2006-01-02"),
			OpeningBalance: reg.OpeningBalance,
			CarriedFrom:    carriedFrom,
			ActorID:        actorID,
			OccurredAt:     reg.OpenedAt,
		}); err != nil {
			return err
		}
		opened = reg
		return nil
	})
	metrics.ObserveRegisterOp("open", metrics.ResultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("register_id", opened.ID).
		Str("business_date", opened.BusinessDate.Format("2006-01-02")).
		Str("opening_balance", opened.OpeningBalance.StringFixed(2)).
		Msg("register opened")
	return opened, nil
}

// CloseRegister closes the open register with opening + in - out.
func (s *Service) CloseRegister(ctx context.Context, actorID string) (*cash.Register, error) {
	start := time.Now()
	var closed *cash.Register
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.registers.LockLifecycle(ctx); err != nil {
			return err
		}
		reg, err := s.registers.FindOpen(ctx)
		if err != nil {
			return err
		}
		if reg == nil {
			return cash.ErrNoOpenRegister
		}
		if err := s.closeRegister(ctx, reg, s.clock.Now(), false, actorID); err != nil {
			return err
		}
		closed = reg
		return nil
	})
	metrics.ObserveRegisterOp("close", metrics.ResultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("register_id", closed.ID).
		Str("closing_balance", closed.ClosingBalance.Decimal.StringFixed(2)).
		Msg("register closed")
	return closed, nil
}

func (s *Service) closeRegister(ctx context.Context, reg *cash.Register, at time.Time, forced bool, actorID string) error {
	totals, err := s.ledger.Totals(ctx, reg.ID)
	if err != nil {
		return err
	}
	if err := reg.Close(cash.Balance(reg.OpeningBalance, totals), at); err != nil {
		return err
	}
	if err := s.registers.Close(ctx, reg); err != nil {
		return err
	}
	if forced {
		s.logger.Warn().
			Int64("register_id", reg.ID).
			Str("business_date", reg.BusinessDate.Format("2006-01-02")).
			Msg("closing register left open on an earlier day")
	}
	return s.publish(ctx, RegisterClosed{
		RegisterID:     reg.ID,
		ClosingBalance: reg.ClosingBalance.Decimal,
		Forced:         forced,
		ActorID:        actorID,
		OccurredAt:     reg.ClosedAt.UTC(),
	})
}

// RecordTransaction appends a movement to an existing register. Closed
// registers still accept movements; they do not change a stored closing
// balance.
func (s *Service) RecordTransaction(ctx context.Context, req RecordRequest) (*cash.Transaction, error) {
	direction, err := cash.ParseDirection(string(req.Direction))
	if err != nil {
		return nil, err
	}
	opDate := req.Date
	if opDate.IsZero() {
		opDate = s.clock.Now()
	}
	tx := &cash.Transaction{
		RegisterID:  req.RegisterID,
		Direction:   direction,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		OpDate:      cash.BusinessDate(opDate),
		ActorID:     req.ActorID,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		reg, err := s.registers.GetShared(ctx, req.RegisterID)
		if err != nil {
			return err
		}
		if reg == nil {
			return cash.ErrRegisterNotFound
		}
		if err := s.ledger.Append(ctx, tx); err != nil {
			return err
		}
		return s.publish(ctx, TransactionRecorded{
			TransactionID: tx.ID,
			RegisterID:    tx.RegisterID,
			Direction:     string(tx.Direction),
			Amount:        tx.Amount,
			ActorID:       tx.ActorID,
			OccurredAt:    tx.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTransaction(string(tx.Direction))
	return tx, nil
}

// GetOpenRegister returns the open register, or nil when none is open.
func (s *Service) GetOpenRegister(ctx context.Context) (*cash.Register, error) {
	return s.registers.FindOpen(ctx)
}

// GetRegister returns a register by id.
func (s *Service) GetRegister(ctx context.Context, id int64) (*cash.Register, error) {
	reg, err := s.registers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, cash.ErrRegisterNotFound
	}
	return reg, nil
}

// ListRegisters returns registers, newest business date first.
func (s *Service) ListRegisters(ctx context.Context, limit int) ([]cash.Register, error) {
	if limit <= 0 || limit > 366 {
		limit = 31
	}
	return s.registers.List(ctx, limit)
}

// ListTransactions returns the movements of a register in insertion order.
func (s *Service) ListTransactions(ctx context.Context, registerID int64) ([]cash.Transaction, error) {
	if _, err := s.GetRegister(ctx, registerID); err != nil {
		return nil, err
	}
	return s.ledger.ListByRegister(ctx, registerID)
}

// GetTransaction returns a movement by id.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*cash.Transaction, error) {
	tx, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, cash.ErrTransactionNotFound
	}
	return tx, nil
}

// Balance returns the live balance of a register from its full ledger.
func (s *Service) Balance(ctx context.Context, registerID int64) (Summary, error) {
	reg, err := s.GetRegister(ctx, registerID)
	if err != nil {
		return Summary{}, err
	}
	totals, err := s.ledger.Totals(ctx, registerID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Register: reg, Totals: totals, Balance: cash.Balance(reg.OpeningBalance, totals)}, nil
}

// Statement returns a register with its movements and totals.
func (s *Service) Statement(ctx context.Context, registerID int64) (Statement, error) {
	reg, err := s.GetRegister(ctx, registerID)
	if err != nil {
		return Statement{}, err
	}
	txs, err := s.ledger.ListByRegister(ctx, registerID)
	if err != nil {
		return Statement{}, err
	}
	totals := cash.SumTransactions(txs)
	return Statement{
		Summary:      Summary{Register: reg, Totals: totals, Balance: cash.Balance(reg.OpeningBalance, totals)},
		Transactions: txs,
	}, nil
}

func (s *Service) publish(ctx context.Context, event any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}
