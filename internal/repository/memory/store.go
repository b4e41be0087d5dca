// Package memory provides in-process implementations of the payroll
// repositories and collaborators, used by tests and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
)

// Store holds every payroll table in memory. Transactions are serialized and
// roll back by restoring a snapshot taken when they began.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	cycles map[string]payroll.Cycle
	slips  map[string]slipRow
	outbox map[string]outboxRow
	rates  []payroll.DeductionRates
	seq    int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		cycles: make(map[string]payroll.Cycle),
		slips:  make(map[string]slipRow),
		outbox: make(map[string]outboxRow),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

type txKey struct{}

// WithinTransaction runs fn while holding the store-wide transaction lock.
// Nested calls join the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// slipRow and outboxRow keep insertion order for stable listings.
type slipRow struct {
	slip payroll.Slip
	seq  int64
}

type outboxRow struct {
	event payroll.OutboxEvent
	seq   int64
}

type snapshot struct {
	cycles map[string]payroll.Cycle
	slips  map[string]slipRow
	outbox map[string]outboxRow
	rates  []payroll.DeductionRates
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		cycles: maps.Clone(s.cycles),
		slips:  maps.Clone(s.slips),
		outbox: maps.Clone(s.outbox),
		rates:  append([]payroll.DeductionRates(nil), s.rates...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = snap.cycles
	s.slips = snap.slips
	s.outbox = snap.outbox
	s.rates = snap.rates
}

// nextSeq must be called with mu held for writing.
func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// write runs fn under the data lock. Outside a transaction it also takes the
// transaction lock so a concurrent rollback cannot discard the write.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if ctx.Value(txKey{}) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
