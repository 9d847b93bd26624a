package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	documents "backoffice/internal/documents/domain"
	"backoffice/internal/platform/memtx"
	references "backoffice/internal/references/domain"
)

// Repository keeps documents in memory. It also answers last-reference
// lookups for the in-memory counter store.
type Repository struct {
	mu     sync.Mutex
	nextID int64
	byRef  map[string]documents.Document
	now    func() time.Time
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{byRef: make(map[string]documents.Document), now: time.Now}
}

// Insert stores doc and assigns its id. Within a memtx unit of work the
// insert is undone on rollback.
func (r *Repository) Insert(ctx context.Context, doc *documents.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[doc.Reference]; exists {
		return documents.ErrDuplicateReference
	}
	r.nextID++
	doc.ID = r.nextID
	doc.CreatedAt = r.now().UTC()
	r.byRef[doc.Reference] = *doc

	reference := doc.Reference
	memtx.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.byRef, reference)
		r.mu.Unlock()
	})
	return nil
}

// Seed stores an already referenced document, as imported history.
func (r *Repository) Seed(doc documents.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID
	r.byRef[doc.Reference] = doc
}

// GetByReference returns nil when the reference is unknown.
func (r *Repository) GetByReference(ctx context.Context, reference string) (*documents.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byRef[reference]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// ListByKindYear returns documents newest first.
func (r *Repository) ListByKindYear(ctx context.Context, kind references.Kind, year int, limit int) ([]documents.Document, error) {
	r.mu.Lock()
	out := make([]documents.Document, 0)
	for _, doc := range r.byRef {
		if doc.Kind == kind && doc.IssuedYear == year {
			out = append(out, doc)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastReference returns the reference of the newest document of kind/year.
func (r *Repository) LastReference(ctx context.Context, kind references.Kind, year int) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		last  string
		maxID int64
	)
	for _, doc := range r.byRef {
		if doc.Kind == kind && doc.IssuedYear == year && doc.ID > maxID {
			maxID = doc.ID
			last = doc.Reference
		}
	}
	return last, maxID > 0, nil
}

// ReferenceTaken reports whether a document already holds reference.
func (r *Repository) ReferenceTaken(ctx context.Context, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byRef[reference]
	return ok, nil
}
