package integration_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	cashapp "backoffice/internal/cash/application"
	cash "backoffice/internal/cash/domain"
	cashrepo "backoffice/internal/cash/infrastructure/postgres"
	"backoffice/internal/platform/database"
	"backoffice/internal/platform/errs"
	"backoffice/migrations"
)

type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func setup(t *testing.T) (*cashapp.Service, *mutableClock) {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := database.Migrate(ctx, db, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM cash_transactions")
	_, _ = db.ExecContext(ctx, "DELETE FROM cash_registers")

	clock := &mutableClock{now: time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)}
	service, err := cashapp.NewService(cashrepo.NewRegisterStore(db), cashrepo.NewLedger(db), database.NewTxRunner(db), cashapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, clock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCash_ConcurrentOpenSingleWinner(t *testing.T) {
	service, _ := setup(t)
	const n = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.OpenRegister(context.Background(), dec("100"), "user-1")
			if err != nil && !errs.IsConflict(err) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one open to succeed, got %d", successes)
	}
}

func TestCash_LifecycleAndCarryOver(t *testing.T) {
	service, clock := setup(t)
	ctx := context.Background()

	reg, err := service.OpenRegister(ctx, dec("100"), "user-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, m := range []struct {
		dir    cash.Direction
		amount string
	}{{cash.DirectionIn, "50"}, {cash.DirectionOut, "20"}, {cash.DirectionIn, "10"}} {
		if _, err := service.RecordTransaction(ctx, cashapp.RecordRequest{RegisterID: reg.ID, Direction: m.dir, Amount: dec(m.amount), ActorID: "user-1"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	clock.set(time.Date(2030, time.January, 8, 9, 0, 0, 0, time.UTC))
	next, err := service.OpenRegister(ctx, dec("0"), "user-1")
	if err != nil {
		t.Fatalf("open next day: %v", err)
	}
	if !next.OpeningBalance.Equal(dec("140")) {
		t.Fatalf("expected opening 140, got %s", next.OpeningBalance)
	}
	prev, err := service.GetRegister(ctx, reg.ID)
	if err != nil {
		t.Fatalf("get previous: %v", err)
	}
	if prev.Status != cash.StatusClosed || !prev.ClosingBalance.Decimal.Equal(dec("140")) {
		t.Fatalf("expected previous closed at 140, got %+v", prev)
	}

	closed, err := service.CloseRegister(ctx, "user-1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.ClosingBalance.Decimal.Equal(dec("140")) {
		t.Fatalf("expected closing 140, got %s", closed.ClosingBalance.Decimal)
	}
	if _, err := service.CloseRegister(ctx, "user-1"); !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	late, err := service.RecordTransaction(ctx, cashapp.RecordRequest{RegisterID: reg.ID, Direction: cash.DirectionIn, Amount: dec("1")})
	if err != nil {
		t.Fatalf("late record: %v", err)
	}
	// The service clock sits in 2030; both stamps come from the database.
	if prev.ClosedAt == nil || !late.CreatedAt.After(*prev.ClosedAt) {
		t.Fatalf("expected late movement after close, created %s closed %v", late.CreatedAt, prev.ClosedAt)
	}
	txs, err := service.ListTransactions(ctx, reg.ID)
	if err != nil || len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d (%v)", len(txs), err)
	}
}
