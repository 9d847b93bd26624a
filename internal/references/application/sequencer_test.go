package application_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"backoffice/internal/platform/errs"
	"backoffice/internal/platform/memtx"
	"backoffice/internal/references/application"
	references "backoffice/internal/references/domain"
	"backoffice/internal/references/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubHistory struct {
	last  string
	found bool
	taken map[string]bool
}

func (h stubHistory) LastReference(_ context.Context, _ references.Kind, _ int) (string, bool, error) {
	return h.last, h.found, nil
}

func (h stubHistory) ReferenceTaken(_ context.Context, reference string) (bool, error) {
	return h.taken[reference], nil
}

type flakyStore struct {
	inner     application.CounterStore
	failures  int
	mu        sync.Mutex
	callCount int
}

func (s *flakyStore) Reserve(ctx context.Context, kind references.Kind, year int) (application.Reservation, error) {
	s.mu.Lock()
	s.callCount++
	fail := s.callCount <= s.failures
	s.mu.Unlock()
	if fail {
		return application.Reservation{}, fmt.Errorf("deadlock detected: %w", errs.ErrTransient)
	}
	return s.inner.Reserve(ctx, kind, year)
}

func newSequencer(t *testing.T, store application.CounterStore, year int) *application.Sequencer {
	t.Helper()
	seq, err := application.NewSequencer(
		store,
		memtx.NewRunner(),
		application.WithClock(fixedClock{now: time.Date(year, time.March, 3, 10, 0, 0, 0, time.UTC)}),
		application.WithRetry(4, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}
	return seq
}

func TestSequencer_ConcurrentIssuanceIsGapFree(t *testing.T) {
	const n = 60
	seq := newSequencer(t, memory.NewCounterStore(nil), 2025)

	var wg sync.WaitGroup
	results := make(chan string, n)
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := seq.IssueReference(context.Background(), references.KindInvoice)
			if err != nil {
				errCh <- err
				return
			}
			results <- ref.String()
		}()
	}
	wg.Wait()
	close(results)
	close(errCh)
	for err := range errCh {
		t.Fatalf("issue: %v", err)
	}

	var got []string
	for ref := range results {
		got = append(got, ref)
	}
	sort.Strings(got)
	if len(got) != n {
		t.Fatalf("expected %d references, got %d", n, len(got))
	}
	for i, ref := range got {
		want := fmt.Sprintf("INV-2025-%03d", i+1)
		if ref != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, ref)
		}
	}
}

func TestSequencer_KindsAreIndependent(t *testing.T) {
	seq := newSequencer(t, memory.NewCounterStore(nil), 2026)
	ctx := context.Background()

	for _, kind := range references.Kinds() {
		ref, err := seq.IssueReference(ctx, kind)
		if err != nil {
			t.Fatalf("issue %s: %v", kind, err)
		}
		if ref.String() != string(kind)+"-2026-001" {
			t.Fatalf("expected first %s reference, got %s", kind, ref)
		}
	}
	ref, err := seq.IssueReference(ctx, references.KindPayment)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ref.String() != "REF-2026-002" {
		t.Fatalf("expected REF-2026-002, got %s", ref)
	}
}

func TestSequencer_ContinuesFromHistory(t *testing.T) {
	store := memory.NewCounterStore(stubHistory{last: "PO-2025-041", found: true})
	seq := newSequencer(t, store, 2025)

	ref, err := seq.IssueReference(context.Background(), references.KindPurchaseOrder)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ref.String() != "PO-2025-042" {
		t.Fatalf("expected PO-2025-042, got %s", ref)
	}
}

func TestSequencer_MalformedHistoryRestartsAtOne(t *testing.T) {
	store := memory.NewCounterStore(stubHistory{last: "legacy/PO/17", found: true})
	seq := newSequencer(t, store, 2025)

	ref, err := seq.IssueReference(context.Background(), references.KindPurchaseOrder)
	if err != nil {
		t.Fatalf("malformed history must not fail issuance: %v", err)
	}
	if ref.String() != "PO-2025-001" {
		t.Fatalf("expected PO-2025-001, got %s", ref)
	}
}

func TestSequencer_MalformedHistorySkipsTakenReferences(t *testing.T) {
	history := stubHistory{
		last:  "legacy/7",
		found: true,
		taken: map[string]bool{"INV-2025-001": true, "INV-2025-002": true},
	}
	seq := newSequencer(t, memory.NewCounterStore(history), 2025)
	ctx := context.Background()

	for _, want := range []string{"INV-2025-003", "INV-2025-004"} {
		ref, err := seq.IssueReference(ctx, references.KindInvoice)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if ref.String() != want {
			t.Fatalf("expected %s, got %s", want, ref)
		}
	}
}

func TestSequencer_FailedPersistDoesNotLeakNumber(t *testing.T) {
	seq := newSequencer(t, memory.NewCounterStore(nil), 2025)
	ctx := context.Background()

	if _, err := seq.IssueReference(ctx, references.KindExpense); err != nil {
		t.Fatalf("issue: %v", err)
	}

	insertErr := errors.New("insert failed")
	_, err := seq.IssueWith(ctx, references.KindExpense, func(context.Context, references.Reference) error {
		return insertErr
	})
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}

	var persisted references.Reference
	ref, err := seq.IssueWith(ctx, references.KindExpense, func(_ context.Context, ref references.Reference) error {
		persisted = ref
		return nil
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ref.String() != "EXP-2025-002" || persisted != ref {
		t.Fatalf("expected EXP-2025-002 to be reissued, got %s (persisted %s)", ref, persisted)
	}
}

func TestSequencer_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{inner: memory.NewCounterStore(nil), failures: 2}
	seq := newSequencer(t, store, 2025)

	ref, err := seq.IssueReference(context.Background(), references.KindQuotation)
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if ref.String() != "PRO-2025-001" {
		t.Fatalf("expected PRO-2025-001, got %s", ref)
	}
	if store.callCount != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.callCount)
	}
}

func TestSequencer_GivesUpAfterBoundedAttempts(t *testing.T) {
	store := &flakyStore{inner: memory.NewCounterStore(nil), failures: 100}
	seq := newSequencer(t, store, 2025)

	_, err := seq.IssueReference(context.Background(), references.KindQuotation)
	if !errs.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if store.callCount != 4 {
		t.Fatalf("expected 4 attempts, got %d", store.callCount)
	}
}

func TestSequencer_DoesNotRetryPermanentErrors(t *testing.T) {
	seq := newSequencer(t, memory.NewCounterStore(nil), 2025)
	calls := 0
	conflict := fmt.Errorf("duplicate reference: %w", errs.ErrConflict)
	_, err := seq.IssueWith(context.Background(), references.KindInvoice, func(context.Context, references.Reference) error {
		calls++
		return conflict
	})
	if !errs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestSequencer_RejectsUnknownKind(t *testing.T) {
	seq := newSequencer(t, memory.NewCounterStore(nil), 2025)
	_, err := seq.IssueReference(context.Background(), references.Kind("ORD"))
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
