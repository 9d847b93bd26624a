package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice/internal/platform/database"
	"backoffice/internal/platform/errs"
	"backoffice/internal/references/application"
	references "backoffice/internal/references/domain"
)

const (
	defaultCountersTable  = "reference_counters"
	defaultDocumentsTable = "documents"
)

// CounterStore keeps one durable counter row per (kind, year).
type CounterStore struct {
	db             *sql.DB
	countersTable  string
	documentsTable string
}

// NewCounterStore constructs a counter store.
func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db, countersTable: defaultCountersTable, documentsTable: defaultDocumentsTable}
}

// Reserve increments the counter of kind/year and returns the new value.
// The row lock taken by the update is held until the surrounding transaction
// ends, which serialises concurrent issuers of the same key. Numbers whose
// reference already belongs to a document are skipped.
func (s *CounterStore) Reserve(ctx context.Context, kind references.Kind, year int) (application.Reservation, error) {
	if s == nil || s.db == nil {
		return application.Reservation{}, errors.New("counter store: nil db")
	}
	conn := database.Conn(ctx, s.db)

	res, err := s.reserve(ctx, conn, kind, year)
	if err != nil {
		return application.Reservation{}, err
	}
	for skips := 0; ; skips++ {
		ref, err := references.New(kind, year, res.Seq)
		if err != nil {
			return application.Reservation{}, err
		}
		taken, err := s.referenceTaken(ctx, conn, ref.String())
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
		if err := conn.QueryRowContext(ctx, fmt.Sprintf(`
UPDATE %s
SET last_value = last_value + 1, updated_at = NOW()
WHERE kind = $1 AND year = $2
RETURNING last_value`, s.countersTable), string(kind), year).Scan(&res.Seq); err != nil {
			return application.Reservation{}, database.Classify(err)
		}
	}
}

func (s *CounterStore) reserve(ctx context.Context, conn database.DBTX, kind references.Kind, year int) (application.Reservation, error) {
	var last int64
	err := conn.QueryRowContext(ctx, fmt.Sprintf(`
UPDATE %s
SET last_value = last_value + 1, updated_at = NOW()
WHERE kind = $1 AND year = $2
RETURNING last_value`, s.countersTable), string(kind), year).Scan(&last)
	if err == nil {
		return application.Reservation{Seq: int(last)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return application.Reservation{}, database.Classify(err)
	}

	lastRef, found, err := s.lastReference(ctx, conn, kind, year)
	if err != nil {
		return application.Reservation{}, err
	}
	seed, fallback := references.SeedFromLast(lastRef, found)

	// A concurrent first issuer may insert between the update above and this
	// statement; the conflict branch then increments its row instead.
	var inserted bool
	err = conn.QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %[1]s (kind, year, last_value)
VALUES ($1, $2, $3)
ON CONFLICT (kind, year)
DO UPDATE SET last_value = %[1]s.last_value + 1, updated_at = NOW()
RETURNING last_value, (xmax = 0) AS inserted`, s.countersTable), string(kind), year, seed+1).Scan(&last, &inserted)
	if err != nil {
		return application.Reservation{}, database.Classify(err)
	}
	if !inserted {
		return application.Reservation{Seq: int(last)}, nil
	}
	return application.Reservation{
		Seq:           int(last),
		Seeded:        true,
		Fallback:      fallback,
		LastReference: lastRef,
	}, nil
}

func (s *CounterStore) referenceTaken(ctx context.Context, conn database.DBTX, reference string) (bool, error) {
	var taken bool
	err := conn.QueryRowContext(ctx, fmt.Sprintf(`
SELECT EXISTS (SELECT 1 FROM %s WHERE reference = $1)`, s.documentsTable), reference).Scan(&taken)
	if err != nil {
		return false, database.Classify(err)
	}
	return taken, nil
}

func (s *CounterStore) lastReference(ctx context.Context, conn database.DBTX, kind references.Kind, year int) (string, bool, error) {
	var reference string
	err := conn.QueryRowContext(ctx, fmt.Sprintf(`
SELECT reference
FROM %s
WHERE kind = $1 AND issued_year = $2
ORDER BY id DESC
LIMIT 1`, s.documentsTable), string(kind), year).Scan(&reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, database.Classify(err)
	}
	return reference, true, nil
}
