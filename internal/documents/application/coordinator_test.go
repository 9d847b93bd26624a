package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"backoffice/internal/documents/application"
	documents "backoffice/internal/documents/domain"
	docmemory "backoffice/internal/documents/infrastructure/memory"
	"backoffice/internal/eventbus"
	"backoffice/internal/eventing"
	evmemory "backoffice/internal/eventing/infrastructure/memory"
	"backoffice/internal/platform/errs"
	"backoffice/internal/platform/memtx"
	refapp "backoffice/internal/references/application"
	references "backoffice/internal/references/domain"
	refmemory "backoffice/internal/references/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, any) error { return errors.New("outbox down") }

type harness struct {
	repo        *docmemory.Repository
	outbox      *evmemory.OutboxStore
	coordinator *application.Coordinator
}

func newHarness(t *testing.T, publisher application.Publisher) harness {
	t.Helper()
	clock := fixedClock{now: time.Date(2025, time.June, 12, 9, 30, 0, 0, time.UTC)}
	repo := docmemory.NewRepository()
	outbox := evmemory.NewOutboxStore()
	seq, err := refapp.NewSequencer(refmemory.NewCounterStore(repo), memtx.NewRunner(), refapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}
	if publisher == nil {
		publisher = eventing.NewPublisher(outbox, nil)
	}
	coordinator, err := application.NewCoordinator(repo, seq,
		application.WithPublisher(publisher),
		application.WithClock(clock),
		application.WithDefaultCurrency("EUR"),
		application.WithLogger(zerolog.Nop()),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return harness{repo: repo, outbox: outbox, coordinator: coordinator}
}

func TestCoordinator_CreateAssignsSequentialReferences(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.coordinator.Create(ctx, references.KindPurchaseOrder, application.CreateRequest{
		Amount:  decimal.RequireFromString("120.50"),
		ActorID: "user-1",
		Label:   " office chairs ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Reference != "PO-2025-001" || first.IssuedYear != 2025 {
		t.Fatalf("unexpected first reference %s", first.Reference)
	}
	if first.Currency != "EUR" || first.Label != "office chairs" || string(first.Attributes) != "{}" {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if first.DateOp.Format("2006-01-02") != "2025-06-12" {
		t.Fatalf("expected today's date, got %s", first.DateOp)
	}

	second, err := h.coordinator.Create(ctx, references.KindPurchaseOrder, application.CreateRequest{})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Reference != "PO-2025-002" {
		t.Fatalf("expected PO-2025-002, got %s", second.Reference)
	}
	invoice, err := h.coordinator.Create(ctx, references.KindInvoice, application.CreateRequest{})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice.Reference != "INV-2025-001" {
		t.Fatalf("expected independent invoice sequence, got %s", invoice.Reference)
	}
	if h.outbox.Pending() != 3 {
		t.Fatalf("expected 3 DocumentIssued events, got %d", h.outbox.Pending())
	}
	pending, _ := h.outbox.ListPending(ctx, 10)
	if pending[0].Envelope.EventType != eventbus.EventTypeOf[application.DocumentIssued]() {
		t.Fatalf("unexpected event type %s", pending[0].Envelope.EventType)
	}
}

func TestCoordinator_MalformedHistoryDoesNotBlockIssuance(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.Seed(documents.Document{Kind: references.KindInvoice, Reference: "INV-2025-001", IssuedYear: 2025})
	h.repo.Seed(documents.Document{Kind: references.KindInvoice, Reference: "legacy/7", IssuedYear: 2025})
	ctx := context.Background()

	for _, want := range []string{"INV-2025-002", "INV-2025-003"} {
		doc, err := h.coordinator.Create(ctx, references.KindInvoice, application.CreateRequest{})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if doc.Reference != want {
			t.Fatalf("expected %s, got %s", want, doc.Reference)
		}
	}
}

func TestCoordinator_ContinuesFromImportedHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.Seed(documents.Document{Kind: references.KindQuotation, Reference: "PRO-2025-037", IssuedYear: 2025})

	doc, err := h.coordinator.Create(context.Background(), references.KindQuotation, application.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Reference != "PRO-2025-038" {
		t.Fatalf("expected PRO-2025-038, got %s", doc.Reference)
	}
}

func TestCoordinator_FailedPublishLeavesNoTrace(t *testing.T) {
	h := newHarness(t, failingPublisher{})
	ctx := context.Background()

	if _, err := h.coordinator.Create(ctx, references.KindExpense, application.CreateRequest{}); err == nil {
		t.Fatalf("expected publish failure")
	}
	list, err := h.coordinator.List(ctx, references.KindExpense, 2025, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rolled back document, found %d", len(list))
	}
}

func TestCoordinator_RejectsNonObjectAttributes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.coordinator.Create(ctx, references.KindPayment, application.CreateRequest{Attributes: json.RawMessage(`[1]`)}); !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	doc, err := h.coordinator.Create(ctx, references.KindPayment, application.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Reference != "REF-2025-001" {
		t.Fatalf("expected REF-2025-001, got %s", doc.Reference)
	}
}

func TestCoordinator_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.coordinator.Create(ctx, references.Kind("XX"), application.CreateRequest{}); !errors.Is(err, references.ErrInvalidKind) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if _, err := h.coordinator.Create(ctx, references.KindInvoice, application.CreateRequest{Amount: decimal.NewFromInt(-1)}); !errors.Is(err, documents.ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
	if _, err := h.coordinator.Create(ctx, references.KindInvoice, application.CreateRequest{Amount: decimal.RequireFromString("19.999")}); !errors.Is(err, documents.ErrAmountPrecision) {
		t.Fatalf("expected precision error, got %v", err)
	}
	if h.outbox.Pending() != 0 {
		t.Fatalf("rejected documents must not publish, got %d pending", h.outbox.Pending())
	}
}

func TestCoordinator_GetAndList(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.coordinator.Create(ctx, references.KindInvoice, application.CreateRequest{}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	doc, err := h.coordinator.Get(ctx, "INV-2025-002")
	if err != nil || doc.Reference != "INV-2025-002" {
		t.Fatalf("get: %v %+v", err, doc)
	}
	if _, err := h.coordinator.Get(ctx, "INV-2025-009"); !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.coordinator.Get(ctx, "garbage"); !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	list, err := h.coordinator.List(ctx, references.KindInvoice, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Reference != "INV-2025-003" || list[1].Reference != "INV-2025-002" {
		t.Fatalf("unexpected list order %+v", list)
	}
}
