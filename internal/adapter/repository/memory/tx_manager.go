package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/carbonledger/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

// Tx buffers writes and applies them all at once on Commit.
type Tx struct {
	store  *Store
	mu     sync.Mutex
	writes []write
	done   bool
}

func (t *Tx) add(w write) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.writes = append(t.writes, w)
	return nil
}

// Commit re-checks every buffered write under the store lock and applies
// them only if all checks pass.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true

	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, w := range t.writes {
		if w.check == nil {
			continue
		}
		if err := w.check(); err != nil {
			return err
		}
	}
	for _, w := range t.writes {
		w.apply()
	}
	return nil
}

// Rollback discards the buffered writes. Rolling back after Commit is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.writes = nil
	return nil
}
