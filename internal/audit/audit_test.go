package audit

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryLog_PreparesEntries(t *testing.T) {
	log := NewMemoryLog()
	if err := log.Log(context.Background(), Entry{Action: "cash.open", Metadata: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if !strings.HasPrefix(entry.ID, "audit-") || entry.CreatedAt.IsZero() || len(entry.PayloadDigest) != 64 {
		t.Fatalf("entry not prepared: %+v", entry)
	}
}
