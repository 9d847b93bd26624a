package audit

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"backoffice/internal/platform/database"
)

// Repository writes audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = Prepare(entry)
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, actor, role, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return database.Classify(err)
}

// MemoryLog keeps audit entries in memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog constructs an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Log appends entry.
func (m *MemoryLog) Log(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, Prepare(entry))
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of the recorded entries.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
