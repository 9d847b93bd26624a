package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"backoffice/internal/observability/metrics"
	"backoffice/internal/platform/errs"
	references "backoffice/internal/references/domain"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 20 * time.Millisecond
	defaultMaxBackoff     = 500 * time.Millisecond

	// MaxSkippedReferences bounds how many already taken numbers a single
	// reservation walks past before giving up with a conflict.
	MaxSkippedReferences = 1000
)

// Reservation is the outcome of reserving the next number of a sequence.
type Reservation struct {
	Seq int
	// Seeded is true when this reservation created the (kind, year) counter.
	Seeded bool
	// Fallback is true when the seed came from an unparseable last reference
	// and the year restarted at 001.
	Fallback bool
	// LastReference is the reference read while seeding, if any.
	LastReference string
	// Skipped lists references passed over because a document already
	// holds them, as happens after a restart at 001.
	Skipped []string
}

// CounterStore reserves sequence numbers. Reserve runs inside the unit of work
// carried by ctx, so the reservation commits or rolls back with it.
type CounterStore interface {
	Reserve(ctx context.Context, kind references.Kind, year int) (Reservation, error)
}

// TxRunner runs fn inside one atomic unit of work.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// PersistFunc stores the document that owns a freshly reserved reference.
// It runs in the same unit of work as the reservation.
type PersistFunc func(ctx context.Context, ref references.Reference) error

// Sequencer issues year-scoped sequential references.
type Sequencer struct {
	store          CounterStore
	tx             TxRunner
	clock          Clock
	logger         zerolog.Logger
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option configures the sequencer.
type Option func(*Sequencer)

// WithClock overrides the wall clock used for the current year.
func WithClock(clock Clock) Option {
	return func(s *Sequencer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithRetry bounds the retry loop used for transient storage failures.
func WithRetry(maxAttempts uint, initial, max time.Duration) Option {
	return func(s *Sequencer) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max > 0 {
			s.maxBackoff = max
		}
	}
}

// NewSequencer constructs a sequencer.
func NewSequencer(store CounterStore, tx TxRunner, opts ...Option) (*Sequencer, error) {
	if store == nil {
		return nil, errors.New("sequencer: nil counter store")
	}
	if tx == nil {
		return nil, errors.New("sequencer: nil tx runner")
	}
	s := &Sequencer{
		store:          store,
		tx:             tx,
		clock:          SystemClock{},
		logger:         zerolog.Nop(),
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueReference reserves and commits the next reference of kind for the
// current year. The number is consumed even if the caller never uses it.
func (s *Sequencer) IssueReference(ctx context.Context, kind references.Kind) (references.Reference, error) {
	return s.IssueWith(ctx, kind, nil)
}

// IssueWith reserves the next reference of kind for the current year and
// passes it to persist inside the same unit of work. When persist fails the
// reservation is rolled back, so the number is issued again by the next call.
// Transient storage failures restart the whole unit of work with bounded
// exponential backoff.
func (s *Sequencer) IssueWith(ctx context.Context, kind references.Kind, persist PersistFunc) (references.Reference, error) {
	if !kind.Valid() {
		return references.Reference{}, references.ErrInvalidKind
	}
	year := s.clock.Now().Year()
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialBackoff
	policy.MaxInterval = s.maxBackoff

	attempt := 0
	ref, err := backoff.Retry(ctx, func() (references.Reference, error) {
		attempt++
		ref, err := s.issueOnce(ctx, kind, year, persist)
		if err == nil {
			return ref, nil
		}
		if errs.IsTransient(err) {
			metrics.IncReferenceRetry(string(kind))
			s.logger.Debug().Err(err).Str("kind", string(kind)).Int("attempt", attempt).Msg("transient sequence failure")
			return references.Reference{}, err
		}
		return references.Reference{}, backoff.Permanent(err)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.maxAttempts))

	metrics.ObserveReferenceIssue(string(kind), metrics.ResultOf(err), time.Since(start))
	if err != nil {
		return references.Reference{}, err
	}
	return ref, nil
}

func (s *Sequencer) issueOnce(ctx context.Context, kind references.Kind, year int, persist PersistFunc) (references.Reference, error) {
	var issued references.Reference
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.store.Reserve(ctx, kind, year)
		if err != nil {
			return err
		}
		ref, err := references.New(kind, year, res.Seq)
		if err != nil {
			return err
		}
		if res.Fallback {
			metrics.IncReferenceFallback(string(kind))
			s.logger.Warn().
				Str("kind", string(kind)).
				Int("year", year).
				Str("last_reference", res.LastReference).
				Str("issued", ref.String()).
				Msg("unparseable last reference, restarting yearly sequence")
		}
		for _, skipped := range res.Skipped {
			s.logger.Warn().
				Str("kind", string(kind)).
				Int("year", year).
				Str("skipped", skipped).
				Msg("reference already taken, skipping")
		}
		if persist != nil {
			if err := persist(ctx, ref); err != nil {
				return err
			}
		}
		issued = ref
		return nil
	})
	if err != nil {
		return references.Reference{}, err
	}
	return issued, nil
}
