package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	documents "backoffice/internal/documents/domain"
	refapp "backoffice/internal/references/application"
	references "backoffice/internal/references/domain"
)

// Repository persists documents.
type Repository interface {
	Insert(ctx context.Context, doc *documents.Document) error
	GetByReference(ctx context.Context, reference string) (*documents.Document, error)
	ListByKindYear(ctx context.Context, kind references.Kind, year int, limit int) ([]documents.Document, error)
}

// Issuer reserves a reference and runs persist in the same unit of work.
type Issuer interface {
	IssueWith(ctx context.Context, kind references.Kind, persist refapp.PersistFunc) (references.Reference, error)
}

// Publisher records domain events in the unit of work carried by ctx.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// CreateRequest carries the caller-supplied fields of a new document.
type CreateRequest struct {
	DateOp         time.Time
	Amount         decimal.Decimal
	Currency       string
	ActorID        string
	CounterpartyID string
	Label          string
	Attributes     json.RawMessage
}

// Coordinator issues a reference and persists its document atomically.
type Coordinator struct {
	repo      Repository
	issuer    Issuer
	publisher Publisher
	clock     refapp.Clock
	currency  string
	logger    zerolog.Logger
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*Coordinator)

// WithPublisher emits DocumentIssued through publisher.
func WithPublisher(publisher Publisher) CoordinatorOption {
	return func(c *Coordinator) { c.publisher = publisher }
}

// WithClock overrides the clock used for default operation dates.
func WithClock(clock refapp.Clock) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDefaultCurrency sets the currency used when the request has none.
func WithDefaultCurrency(currency string) CoordinatorOption {
	return func(c *Coordinator) { c.currency = currency }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(repo Repository, issuer Issuer, opts ...CoordinatorOption) (*Coordinator, error) {
	if repo == nil {
		return nil, errors.New("documents coordinator: nil repository")
	}
	if issuer == nil {
		return nil, errors.New("documents coordinator: nil issuer")
	}
	c := &Coordinator{repo: repo, issuer: issuer, clock: refapp.SystemClock{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create assigns the next reference of kind and stores the document with it.
// A failed insert rolls the reservation back, so no number is skipped.
func (c *Coordinator) Create(ctx context.Context, kind references.Kind, req CreateRequest) (*documents.Document, error) {
	if !kind.Valid() {
		return nil, references.ErrInvalidKind
	}
	if req.Amount.IsNegative() {
		return nil, documents.ErrNegativeAmount
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return nil, documents.ErrAmountPrecision
	}
	attributes, err := normalizeAttributes(req.Attributes)
	if err != nil {
		return nil, err
	}
	dateOp := req.DateOp
	if dateOp.IsZero() {
		now := c.clock.Now()
		dateOp = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = c.currency
	}

	var created *documents.Document
	_, err = c.issuer.IssueWith(ctx, kind, func(ctx context.Context, ref references.Reference) error {
		doc := &documents.Document{
			Kind:           kind,
			Reference:      ref.String(),
			IssuedYear:     ref.Year,
			DateOp:         dateOp,
			Amount:         req.Amount,
			Currency:       currency,
			ActorID:        req.ActorID,
			CounterpartyID: strings.TrimSpace(req.CounterpartyID),
			Label:          strings.TrimSpace(req.Label),
			Attributes:     attributes,
		}
		if err := c.repo.Insert(ctx, doc); err != nil {
			return err
		}
		if c.publisher != nil {
			event := DocumentIssued{
				DocumentID: doc.ID,
				Kind:       string(kind),
				Reference:  doc.Reference,
				Year:       ref.Year,
				ActorID:    doc.ActorID,
				OccurredAt: doc.CreatedAt,
			}
			if err := c.publisher.Publish(ctx, event); err != nil {
				return err
			}
		}
		created = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("kind", string(kind)).Str("reference", created.Reference).Int64("document_id", created.ID).Msg("document issued")
	return created, nil
}

// Get returns the document with reference.
func (c *Coordinator) Get(ctx context.Context, reference string) (*documents.Document, error) {
	if _, err := references.Parse(reference); err != nil {
		return nil, err
	}
	doc, err := c.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documents.ErrDocumentNotFound
	}
	return doc, nil
}

// List returns documents of kind issued in year, newest first. A zero year
// means the current year.
func (c *Coordinator) List(ctx context.Context, kind references.Kind, year int, limit int) ([]documents.Document, error) {
	if !kind.Valid() {
		return nil, references.ErrInvalidKind
	}
	if year == 0 {
		year = c.clock.Now().Year()
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return c.repo.ListByKindYear(ctx, kind, year, limit)
}

func normalizeAttributes(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, documents.ErrInvalidAttributes
	}
	return json.RawMessage(trimmed), nil
}
