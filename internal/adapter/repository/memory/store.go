// Package memory holds an in-process store used for local runs and tests.
// It keeps the same contract as the postgres adapter: per-lot versions,
// compare-and-swap, and writes that only land when their transaction commits.
package memory

import (
	"sync"

	"github.com/iho/carbonledger/internal/domain"
)

// Store is the shared state behind the memory repositories.
type Store struct {
	mu        sync.RWMutex
	lots      map[string]*domain.CreditLot
	sequences map[int]int64
	events    []*domain.OutboxEvent
	audit     []*domain.AuditLog
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		lots:      make(map[string]*domain.CreditLot),
		sequences: make(map[int]int64),
	}
}

// Lots returns the lot repository backed by s.
func (s *Store) Lots() *LotRepository {
	return &LotRepository{store: s}
}

// Outbox returns the outbox repository backed by s.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

// Audit returns the audit repository backed by s.
func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{store: s}
}

// TxManager returns a transaction manager for s.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// write is one buffered change. check runs under the store lock at commit
// time and may refuse the whole transaction.
type write struct {
	check func() error
	apply func()
}

// stage buffers w in tx, or applies it at once when there is no memory transaction.
func (s *Store) stage(tx any, w write) error {
	if t, ok := tx.(*Tx); ok && t.store == s {
		return t.add(w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.check != nil {
		if err := w.check(); err != nil {
			return err
		}
	}
	w.apply()
	return nil
}
