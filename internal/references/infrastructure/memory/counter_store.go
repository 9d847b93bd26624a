package memory

import (
	"context"
	"fmt"
	"sync"

	"backoffice/internal/platform/errs"
	"backoffice/internal/platform/memtx"
	"backoffice/internal/references/application"
	references "backoffice/internal/references/domain"
)

// History answers questions about already issued references.
type History interface {
	// LastReference returns the newest reference of kind issued in year.
	LastReference(ctx context.Context, kind references.Kind, year int) (string, bool, error)
	// ReferenceTaken reports whether a document already holds reference.
	ReferenceTaken(ctx context.Context, reference string) (bool, error)
}

type counterKey struct {
	kind references.Kind
	year int
}

// CounterStore is an in-memory counter store for tests and demos.
type CounterStore struct {
	mu       sync.Mutex
	counters map[counterKey]int
	history  History
}

// NewCounterStore constructs a store. history may be nil.
func NewCounterStore(history History) *CounterStore {
	return &CounterStore{counters: make(map[counterKey]int), history: history}
}

// Reserve increments the counter of kind/year, skipping numbers whose
// reference is already taken. Inside a memtx unit of work the increments are
// undone if the unit fails.
func (s *CounterStore) Reserve(ctx context.Context, kind references.Kind, year int) (application.Reservation, error) {
	res, err := s.reserve(ctx, kind, year)
	if err != nil || s.history == nil {
		return res, err
	}
	for skips := 0; ; skips++ {
		ref, err := references.New(kind, year, res.Seq)
		if err != nil {
			return application.Reservation{}, err
		}
		taken, err := s.history.ReferenceTaken(ctx, ref.String())
		if err != nil {
			return application.Reservation{}, err
		}
		if !taken {
			return res, nil
		}
		if skips >= application.MaxSkippedReferences {
			return application.Reservation{}, fmt.Errorf("counter store: %d taken references after %s: %w", skips, ref, errs.ErrConflict)
		}
		res.Skipped = append(res.Skipped, ref.String())
		res.Seq = s.advance(ctx, counterKey{kind: kind, year: year})
	}
}

func (s *CounterStore) advance(ctx context.Context, key counterKey) int {
	s.mu.Lock()
	last := s.counters[key]
	s.counters[key] = last + 1
	s.mu.Unlock()
	memtx.OnRollback(ctx, func() { s.restore(key, last, true) })
	return last + 1
}

func (s *CounterStore) reserve(ctx context.Context, kind references.Kind, year int) (application.Reservation, error) {
	key := counterKey{kind: kind, year: year}

	s.mu.Lock()
	last, ok := s.counters[key]
	if ok {
		s.counters[key] = last + 1
		s.mu.Unlock()
		memtx.OnRollback(ctx, func() { s.restore(key, last, true) })
		return application.Reservation{Seq: last + 1}, nil
	}
	s.mu.Unlock()

	var lastRef string
	var found bool
	if s.history != nil {
		var err error
		lastRef, found, err = s.history.LastReference(ctx, kind, year)
		if err != nil {
			return application.Reservation{}, err
		}
	}
	seed, fallback := references.SeedFromLast(lastRef, found)

	s.mu.Lock()
	if current, ok := s.counters[key]; ok {
		s.counters[key] = current + 1
		s.mu.Unlock()
		memtx.OnRollback(ctx, func() { s.restore(key, current, true) })
		return application.Reservation{Seq: current + 1}, nil
	}
	s.counters[key] = seed + 1
	s.mu.Unlock()
	memtx.OnRollback(ctx, func() { s.restore(key, 0, false) })

	return application.Reservation{
		Seq:           seed + 1,
		Seeded:        true,
		Fallback:      fallback,
		LastReference: lastRef,
	}, nil
}

func (s *CounterStore) restore(key counterKey, value int, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !exists {
		delete(s.counters, key)
		return
	}
	s.counters[key] = value
}
