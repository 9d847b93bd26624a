package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/audit"
	"backoffice/internal/auth"
	documentsapp "backoffice/internal/documents/application"
	documents "backoffice/internal/documents/domain"
	"backoffice/internal/documents/infrastructure/memory"
	"backoffice/internal/platform/memtx"
	refapp "backoffice/internal/references/application"
	refmemory "backoffice/internal/references/infrastructure/memory"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC) }

func newTestHandler(t *testing.T) (*Handler, *audit.MemoryLog) {
	t.Helper()
	repo := memory.NewRepository()
	seq, err := refapp.NewSequencer(refmemory.NewCounterStore(repo), memtx.NewRunner(), refapp.WithClock(fixedClock{}))
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}
	coordinator, err := documentsapp.NewCoordinator(repo, seq, documentsapp.WithClock(fixedClock{}), documentsapp.WithDefaultCurrency("EUR"))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	log := audit.NewMemoryLog()
	handler, err := NewHandler(coordinator, log)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, log
}

func withOperator(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(context.Background(), auth.RoleCashier, "user-7"))
}

func TestHandler_CreateAndFetch(t *testing.T) {
	handler, log := newTestHandler(t)

	body := `{"amount":"99.90","label":"paper","attributes":{"supplier":"acme"}}`
	req := withOperator(httptest.NewRequest(http.MethodPost, "/api/v1/documents/invoices", strings.NewReader(body)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created documents.Document
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Reference != "INV-2025-001" || created.ActorID != "user-7" {
		t.Fatalf("unexpected document %+v", created)
	}
	if loc := resp.Header().Get("Location"); loc != "/api/v1/documents/invoices/INV-2025-001" {
		t.Fatalf("unexpected location %q", loc)
	}
	if entries := log.Entries(); len(entries) != 1 || entries[0].Action != "document.create" || entries[0].Actor != "user-7" {
		t.Fatalf("expected one audit entry, got %+v", entries)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/invoices/INV-2025-001", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/expenses/INV-2025-001", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for kind mismatch, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/invoices?year=2025", nil))
	var list []documents.Document
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one listed document, got %s (%v)", resp.Body.String(), err)
	}
}

func TestHandler_Errors(t *testing.T) {
	handler, _ := newTestHandler(t)
	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/v1/documents/receipts", `{}`, http.StatusNotFound},
		{http.MethodPost, "/api/v1/documents/invoices", `{"amount":"-5"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/documents/invoices", `{"date_op":"01/02/2025"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/documents/invoices", `{"unknown":true}`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/documents/invoices/INV-2025-404", ``, http.StatusNotFound},
		{http.MethodGet, "/api/v1/documents/invoices/bogus", ``, http.StatusBadRequest},
		{http.MethodDelete, "/api/v1/documents/invoices", ``, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/documents/invoices?year=abc", ``, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := withOperator(httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}
