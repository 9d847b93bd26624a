package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/eventing"
	"backoffice/internal/platform/database"
)

const defaultDLQTable = "dead_letter_events"

// DLQStore keeps events whose delivery failed.
type DLQStore struct {
	db    *sql.DB
	table string
}

// NewDLQStore constructs a dead-letter store.
func NewDLQStore(db *sql.DB) *DLQStore {
	return &DLQStore{db: db, table: defaultDLQTable}
}

// RecordFailure inserts or updates a dead-letter record.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, err error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		return marshalErr
	}
	message := ""
	if err != nil {
		message = err.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	event_id,
	event_type,
	payload,
	error,
	first_seen_at,
	last_seen_at,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $5, 1
)
ON CONFLICT (event_id)
DO UPDATE SET
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %[1]s.attempts + 1`, s.table)

	_, execErr := s.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, message, time.Now().UTC())
	return database.Classify(execErr)
}
