// Package memtx provides a serialising unit of work for the in-memory stores.
// A single mutex guards every transaction; stores register undo callbacks so
// that a failed unit of work leaves no partial writes behind.
package memtx

import (
	"context"
	"sync"
)

type txKey struct{}

type txState struct {
	undo []func()
}

// Runner serialises units of work.
type Runner struct {
	mu sync.Mutex
}

// NewRunner constructs a runner.
func NewRunner() *Runner {
	return &Runner{}
}

// InTx runs fn exclusively. When fn fails, registered undo callbacks run in
// reverse order. Nested calls join the outer unit of work.
func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		for i := len(state.undo) - 1; i >= 0; i-- {
			state.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the surrounding unit of work fails.
// Outside a unit of work it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if state, ok := ctx.Value(txKey{}).(*txState); ok && undo != nil {
		state.undo = append(state.undo, undo)
	}
}
