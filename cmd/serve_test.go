package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"backoffice/internal/eventing"
)

func TestLoggingMiddleware_PropagatesRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = eventing.MetaFromContext(r.Context()).CorrelationID
		w.WriteHeader(http.StatusTeapot)
	})
	handler := loggingMiddleware(next, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cash/registers", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status passthrough, got %d", rec.Code)
	}
	if seen != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
