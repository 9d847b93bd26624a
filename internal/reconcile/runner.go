package reconcile

import (
	"context"
	"errors"

	cash "backoffice/internal/cash/domain"
)

// SequenceSource lists the stored sequences of a year.
type SequenceSource interface {
	Sequences(ctx context.Context, year int) ([]SequenceInput, error)
}

// RegisterSource lists registers, newest first.
type RegisterSource interface {
	List(ctx context.Context, limit int) ([]cash.Register, error)
}

// TransactionSource lists the ledger rows of a register.
type TransactionSource interface {
	ListByRegister(ctx context.Context, registerID int64) ([]cash.Transaction, error)
}

// Runner produces reconciliation reports.
type Runner struct {
	sequences    SequenceSource
	registers    RegisterSource
	transactions TransactionSource
}

// NewRunner constructs a runner.
func NewRunner(sequences SequenceSource, registers RegisterSource, transactions TransactionSource) (*Runner, error) {
	if sequences == nil || registers == nil || transactions == nil {
		return nil, errors.New("reconcile: nil source")
	}
	return &Runner{sequences: sequences, registers: registers, transactions: transactions}, nil
}

// Sequences checks every sequence stored for year.
func (r *Runner) Sequences(ctx context.Context, year int) ([]SequenceReport, error) {
	inputs, err := r.sequences.Sequences(ctx, year)
	if err != nil {
		return nil, err
	}
	out := make([]SequenceReport, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, CheckSequence(in))
	}
	return out, nil
}

// Registers checks the newest limit registers.
func (r *Runner) Registers(ctx context.Context, limit int) ([]RegisterReport, error) {
	regs, err := r.registers.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RegisterReport, 0, len(regs))
	for _, reg := range regs {
		txs, err := r.transactions.ListByRegister(ctx, reg.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CheckRegister(RegisterInput{Register: reg, Transactions: txs}))
	}
	return out, nil
}
