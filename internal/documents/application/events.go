package application

import "time"

// DocumentIssued is emitted once a document and its reference are committed.
type DocumentIssued struct {
	DocumentID int64     `json:"document_id"`
	Kind       string    `json:"kind"`
	Reference  string    `json:"reference"`
	Year       int       `json:"year"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
