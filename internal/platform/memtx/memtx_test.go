package memtx

import (
	"context"
	"errors"
	"testing"
)

func TestRunnerRollsBackOnError(t *testing.T) {
	runner := NewRunner()
	value := 1
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		prev := value
		value = 2
		OnRollback(ctx, func() { value = prev })
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if value != 1 {
		t.Fatalf("expected rollback to 1, got %d", value)
	}
}

func TestRunnerNestedJoinsOuter(t *testing.T) {
	runner := NewRunner()
	value := 0
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		return runner.InTx(ctx, func(ctx context.Context) error {
			value = 5
			OnRollback(ctx, func() { value = 0 })
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 5 {
		t.Fatalf("expected commit, got %d", value)
	}
}
