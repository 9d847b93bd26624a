package cash

import (
	"fmt"

	"backoffice/internal/platform/errs"
)

var (
	// ErrRegisterExists is returned when today's register was already opened.
	ErrRegisterExists = fmt.Errorf("cash: register already exists for today: %w", errs.ErrConflict)
	// ErrNoOpenRegister is returned by close when no register is open.
	ErrNoOpenRegister = fmt.Errorf("cash: no open register: %w", errs.ErrNotFound)
	// ErrRegisterNotFound is returned when a register id is unknown.
	ErrRegisterNotFound = fmt.Errorf("cash: register not found: %w", errs.ErrNotFound)
	// ErrTransactionNotFound is returned when a transaction id is unknown.
	ErrTransactionNotFound = fmt.Errorf("cash: transaction not found: %w", errs.ErrNotFound)
	// ErrRegisterClosed is returned when closing a register twice.
	ErrRegisterClosed = fmt.Errorf("cash: register already closed: %w", errs.ErrConflict)

	ErrInvalidDirection       = fmt.Errorf("cash: direction must be in or out: %w", errs.ErrValidation)
	ErrNonPositiveAmount      = fmt.Errorf("cash: amount must be positive: %w", errs.ErrValidation)
	ErrNegativeOpeningBalance = fmt.Errorf("cash: opening balance must not be negative: %w", errs.ErrValidation)
	ErrInvalidRegisterID      = fmt.Errorf("cash: invalid register id: %w", errs.ErrValidation)
	ErrAmountPrecision        = fmt.Errorf("cash: amounts carry at most 2 decimals: %w", errs.ErrValidation)
)
