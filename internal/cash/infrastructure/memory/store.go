package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	cash "backoffice/internal/cash/domain"
	"backoffice/internal/platform/memtx"
)

// RegisterStore keeps registers in memory. It relies on memtx for
// serialisation, so LockLifecycle and GetShared take no extra lock.
type RegisterStore struct {
	mu        sync.Mutex
	nextID    int64
	registers map[int64]cash.Register
	now       func() time.Time
}

// NewRegisterStore constructs an empty store.
func NewRegisterStore() *RegisterStore {
	return &RegisterStore{registers: make(map[int64]cash.Register), now: time.Now}
}

// WithNow replaces the clock that stamps closes.
func (s *RegisterStore) WithNow(now func() time.Time) *RegisterStore {
	s.now = now
	return s
}

// LockLifecycle is a no-op; memtx already runs units of work one at a time.
func (s *RegisterStore) LockLifecycle(ctx context.Context) error {
	return nil
}

// Create stores reg, enforcing one register per date and one open register.
func (s *RegisterStore) Create(ctx context.Context, reg *cash.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.registers {
		if existing.BusinessDate.Equal(reg.BusinessDate) {
			return cash.ErrRegisterExists
		}
		if reg.Status == cash.StatusOpen && existing.Status == cash.StatusOpen {
			return cash.ErrRegisterExists
		}
	}
	s.nextID++
	reg.ID = s.nextID
	s.registers[reg.ID] = *reg

	id := reg.ID
	memtx.OnRollback(ctx, func() {
		s.mu.Lock()
		delete(s.registers, id)
		s.mu.Unlock()
	})
	return nil
}

// Close persists the closed state of reg and stamps closed_at with the
// store clock.
func (s *RegisterStore) Close(ctx context.Context, reg *cash.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.registers[reg.ID]
	if !ok {
		return cash.ErrRegisterNotFound
	}
	if prev.Status != cash.StatusOpen {
		return cash.ErrRegisterClosed
	}
	closedAt := s.now().UTC()
	reg.ClosedAt = &closedAt
	s.registers[reg.ID] = *reg
	memtx.OnRollback(ctx, func() {
		s.mu.Lock()
		s.registers[prev.ID] = prev
		s.mu.Unlock()
	})
	return nil
}

// Get returns nil when id is unknown.
func (s *RegisterStore) Get(ctx context.Context, id int64) (*cash.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registers[id]
	if !ok {
		return nil, nil
	}
	return &reg, nil
}

// GetShared is Get; memtx already excludes a concurrent close.
func (s *RegisterStore) GetShared(ctx context.Context, id int64) (*cash.Register, error) {
	return s.Get(ctx, id)
}

// FindByDate returns the register of date, if any.
func (s *RegisterStore) FindByDate(ctx context.Context, date time.Time) (*cash.Register, error) {
	return s.find(func(r cash.Register) bool { return r.BusinessDate.Equal(date) }), nil
}

// FindOpen returns the open register, if any.
func (s *RegisterStore) FindOpen(ctx context.Context) (*cash.Register, error) {
	return s.find(func(r cash.Register) bool { return r.Status == cash.StatusOpen }), nil
}

// Latest returns the register with the newest business date.
func (s *RegisterStore) Latest(ctx context.Context) (*cash.Register, error) {
	list, _ := s.List(ctx, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// List returns registers, newest business date first.
func (s *RegisterStore) List(ctx context.Context, limit int) ([]cash.Register, error) {
	s.mu.Lock()
	out := make([]cash.Register, 0, len(s.registers))
	for _, reg := range s.registers {
		out = append(out, reg)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessDate.After(out[j].BusinessDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RegisterStore) find(match func(cash.Register) bool) *cash.Register {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registers {
		if match(reg) {
			found := reg
			return &found
		}
	}
	return nil
}

// Ledger keeps movements in memory.
type Ledger struct {
	mu     sync.Mutex
	nextID int64
	txs    []cash.Transaction
	now    func() time.Time
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// WithNow replaces the clock that stamps created_at.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Append stores tx and assigns its id.
func (l *Ledger) Append(ctx context.Context, tx *cash.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	tx.ID = l.nextID
	tx.CreatedAt = l.now().UTC()
	l.txs = append(l.txs, *tx)

	id := tx.ID
	memtx.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i := range l.txs {
			if l.txs[i].ID == id {
				l.txs = append(l.txs[:i], l.txs[i+1:]...)
				return
			}
		}
	})
	return nil
}

// Get returns nil when id is unknown.
func (l *Ledger) Get(ctx context.Context, id int64) (*cash.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.txs {
		if tx.ID == id {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

// ListByRegister returns movements in insertion order.
func (l *Ledger) ListByRegister(ctx context.Context, registerID int64) ([]cash.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]cash.Transaction, 0)
	for _, tx := range l.txs {
		if tx.RegisterID == registerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Totals sums the movements of a register.
func (l *Ledger) Totals(ctx context.Context, registerID int64) (cash.Totals, error) {
	txs, err := l.ListByRegister(ctx, registerID)
	if err != nil {
		return cash.Totals{}, err
	}
	return cash.SumTransactions(txs), nil
}
