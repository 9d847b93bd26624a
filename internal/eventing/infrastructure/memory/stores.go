package memory

import (
	"context"
	"sync"

	"backoffice/internal/eventing"
	"backoffice/internal/platform/memtx"
)

type outboxEntry struct {
	record eventing.OutboxRecord
	status string
}

// OutboxStore keeps outbox records in memory. Inserts made inside a memtx
// unit of work are dropped when the unit rolls back.
type OutboxStore struct {
	mu      sync.Mutex
	entries []*outboxEntry
}

// NewOutboxStore constructs an empty outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{}
}

// Insert appends a pending record.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	id := eventing.NewEventID()
	entry := &outboxEntry{record: eventing.OutboxRecord{ID: id, Envelope: env}, status: "pending"}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	memtx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.entries {
			if e == entry {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	})
	return id, nil
}

// ListPending returns pending records in insertion order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventing.OutboxRecord
	for _, e := range s.entries {
		if e.status != "pending" {
			continue
		}
		out = append(out, e.record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkSent marks a record as sent.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	s.setStatus(id, "sent")
	return nil
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	s.setStatus(id, "failed")
	return nil
}

// Pending counts records awaiting dispatch.
func (s *OutboxStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.status == "pending" {
			n++
		}
	}
	return n
}

func (s *OutboxStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.record.ID == id {
			e.status = status
			return
		}
	}
}

// ProcessedStore remembers processed (event, consumer) pairs.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[[2]string]struct{}
}

// NewProcessedStore constructs an empty store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[[2]string]struct{})}
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[[2]string{eventID, consumerName}]
	return ok, nil
}

// MarkProcessed records eventID as handled by consumerName.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	s.seen[[2]string{eventID, consumerName}] = struct{}{}
	s.mu.Unlock()
	return nil
}
