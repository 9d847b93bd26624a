package http

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/audit"
	"backoffice/internal/auth"
	cashapp "backoffice/internal/cash/application"
	cash "backoffice/internal/cash/domain"
	"backoffice/internal/cash/infrastructure/memory"
	"backoffice/internal/platform/memtx"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC) }

func newTestHandler(t *testing.T) (*Handler, *audit.MemoryLog) {
	t.Helper()
	service, err := cashapp.NewService(memory.NewRegisterStore(), memory.NewLedger(), memtx.NewRunner(), cashapp.WithClock(fixedClock{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	log := audit.NewMemoryLog()
	handler, err := NewHandler(service, log, "EUR")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, log
}

func serve(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(context.Background(), auth.RoleManager, "manager-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHandler_RegisterLifecycle(t *testing.T) {
	handler, log := newTestHandler(t)

	resp := serve(handler, http.MethodPost, "/api/v1/cash/open", `{"opening_balance":"100.00"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var reg cash.Register
	if err := json.Unmarshal(resp.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}

	resp = serve(handler, http.MethodPost, "/api/v1/cash/open", `{"opening_balance":"5"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("second open: expected 409, got %d", resp.Code)
	}

	for _, body := range []string{
		`{"register_id":1,"direction":"in","amount":"50","description":"sale"}`,
		`{"register_id":1,"direction":"out","amount":"20","date":"2025-05-05"}`,
		`{"register_id":1,"direction":"in","amount":10}`,
	} {
		resp = serve(handler, http.MethodPost, "/api/v1/cash/transactions", body)
		if resp.Code != http.StatusCreated {
			t.Fatalf("record %s: expected 201, got %d: %s", body, resp.Code, resp.Body.String())
		}
	}

	resp = serve(handler, http.MethodGet, "/api/v1/cash/registers/open", "")
	var summary cashapp.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Balance.String() != "140" {
		t.Fatalf("expected live balance 140, got %s", summary.Balance)
	}

	resp = serve(handler, http.MethodPost, "/api/v1/cash/close", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", resp.Code)
	}
	var closed struct {
		ClosingBalance string `json:"closing_balance"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.ClosingBalance != "140" || closed.Status != "closed" {
		t.Fatalf("unexpected close response %+v", closed)
	}

	resp = serve(handler, http.MethodPost, "/api/v1/cash/close", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second close: expected 404, got %d", resp.Code)
	}

	resp = serve(handler, http.MethodGet, "/api/v1/cash/registers/1/transactions", "")
	var txs []cash.Transaction
	if err := json.Unmarshal(resp.Body.Bytes(), &txs); err != nil || len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %s (%v)", resp.Body.String(), err)
	}
	if txs[0].ActorID != "manager-1" {
		t.Fatalf("expected actor from token subject, got %q", txs[0].ActorID)
	}

	actions := map[string]int{}
	for _, entry := range log.Entries() {
		actions[entry.Action]++
	}
	if actions["cash.open"] != 1 || actions["cash.close"] != 1 || actions["cash.transaction"] != 3 {
		t.Fatalf("unexpected audit actions %v", actions)
	}
}

func TestHandler_Exports(t *testing.T) {
	handler, _ := newTestHandler(t)
	serve(handler, http.MethodPost, "/api/v1/cash/open", `{"opening_balance":"10"}`)
	serve(handler, http.MethodPost, "/api/v1/cash/transactions", `{"register_id":1,"direction":"in","amount":"2.5","description":"coffee"}`)

	resp := serve(handler, http.MethodGet, "/api/v1/cash/registers/1/export.pdf", "")
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf export: %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF body")
	}

	resp = serve(handler, http.MethodGet, "/api/v1/cash/registers/1/export.xlsx", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("xlsx export: %d", resp.Code)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected zip container for xlsx")
	}

	resp = serve(handler, http.MethodGet, "/api/v1/cash/registers/9/export.pdf", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing register export: expected 404, got %d", resp.Code)
	}
}

func TestBuildStatementPDF_TranslatesAccentsForCoreFont(t *testing.T) {
	reg := cash.Register{ID: 1, BusinessDate: time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), Status: cash.StatusOpen}
	stmt := cashapp.Statement{
		Summary: cashapp.Summary{Register: &reg},
		Transactions: []cash.Transaction{
			{ID: 1, RegisterID: 1, Direction: cash.DirectionIn, Description: "Café crème"},
		},
	}
	out, err := BuildStatementPDF(stmt, "EUR")
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}

	content := pdfContent(t, out)
	if !bytes.Contains(content, []byte("Caf\xe9 cr\xe8me")) {
		t.Fatalf("expected cp1252 description in page content")
	}
	if bytes.Contains(content, []byte("Café")) {
		t.Fatalf("raw UTF-8 leaked into page content")
	}
}

// pdfContent inflates every Flate stream of a PDF and concatenates them.
func pdfContent(t *testing.T, data []byte) []byte {
	t.Helper()
	var out []byte
	rest := data
	for {
		start := bytes.Index(rest, []byte("stream\n"))
		if start < 0 {
			return out
		}
		rest = rest[start+len("stream\n"):]
		end := bytes.Index(rest, []byte("\nendstream"))
		if end < 0 {
			return out
		}
		if r, err := zlib.NewReader(bytes.NewReader(rest[:end])); err == nil {
			inflated, _ := io.ReadAll(r)
			out = append(out, inflated...)
		}
		rest = rest[end+len("\nendstream"):]
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
		{http.MethodPost, "/api/v1/cash/open", `{"opening_balance":"-1"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/cash/open", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/cash/transactions", `{"register_id":1,"direction":"in","amount":"1"}`, http.StatusNotFound},
		{http.MethodPost, "/api/v1/cash/transactions", `{"register_id":1,"direction":"up","amount":"1"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/cash/transactions", `{"register_id":1,"direction":"in","amount":"1","date":"May 5"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/cash/registers/abc", ``, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/cash/registers/7", ``, http.StatusNotFound},
		{http.MethodGet, "/api/v1/cash/transactions/3", ``, http.StatusNotFound},
		{http.MethodGet, "/api/v1/cash/unknown", ``, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := serve(handler, tc.method, tc.path, tc.body)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}

	resp := serve(handler, http.MethodGet, "/api/v1/cash/registers/open", "")
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "null" {
		t.Fatalf("expected null open register, got %d %q", resp.Code, resp.Body.String())
	}
}
