package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"backoffice/internal/platform/database"
	references "backoffice/internal/references/domain"
)

// PostgresSequences reads counters and document references.
type PostgresSequences struct {
	db *sql.DB
}

// NewPostgresSequences constructs a sequence source.
func NewPostgresSequences(db *sql.DB) *PostgresSequences {
	return &PostgresSequences{db: db}
}

// Sequences returns one input per kind that has a counter or documents in year.
func (s *PostgresSequences) Sequences(ctx context.Context, year int) ([]SequenceInput, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reconcile: nil db")
	}
	byKind := make(map[references.Kind]*SequenceInput)
	get := func(kind references.Kind) *SequenceInput {
		in, ok := byKind[kind]
		if !ok {
			in = &SequenceInput{Kind: kind, Year: year}
			byKind[kind] = in
		}
		return in
	}

	conn := database.Conn(ctx, s.db)
	rows, err := conn.QueryContext(ctx, `
SELECT kind, last_value
FROM reference_counters
WHERE year = $1`, year)
	if err != nil {
		return nil, database.Classify(err)
	}
	for rows.Next() {
		var (
			kind string
			last int
		)
		if err := rows.Scan(&kind, &last); err != nil {
			rows.Close()
			return nil, err
		}
		get(references.Kind(kind)).Counter = last
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, database.Classify(err)
	}
	rows.Close()

	rows, err = conn.QueryContext(ctx, `
SELECT kind, reference
FROM documents
WHERE issued_year = $1
ORDER BY kind, id`, year)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, reference string
		if err := rows.Scan(&kind, &reference); err != nil {
			return nil, err
		}
		in := get(references.Kind(kind))
		in.References = append(in.References, reference)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}

	out := make([]SequenceInput, 0, len(byKind))
	for _, in := range byKind {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}
