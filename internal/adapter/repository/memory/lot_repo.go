package memory

import (
	"context"
	"sort"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// LotRepository implements usecase.LotRepository.
type LotRepository struct {
	store *Store
}

// GetByID returns a copy of the stored lot.
func (r *LotRepository) GetByID(ctx context.Context, id string) (*domain.CreditLot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	lot, ok := r.store.lots[id]
	if !ok {
		return nil, domain.LotError(domain.ErrLotNotFound, id, "", "no such lot")
	}
	return lot.Clone(), nil
}

// Query returns copies of the lots matching filter, ordered by id.
func (r *LotRepository) Query(ctx context.Context, filter domain.LotFilter) ([]*domain.CreditLot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.CreditLot, 0)
	for _, lot := range r.store.lots {
		if filter.Matches(lot) {
			result = append(result, lot.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return filter.Less(result[i], result[j]) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.CreditLot{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Create stores lot with version 1 when tx commits.
func (r *LotRepository) Create(ctx context.Context, tx usecase.Transaction, lot *domain.CreditLot) error {
	lot.Version = 1
	stored := lot.Clone()

	check := func() error {
		if _, ok := r.store.lots[stored.ID]; ok {
			return domain.LotError(domain.ErrLotExists, stored.ID, "", "lot id already taken")
		}
		return nil
	}

	r.store.mu.RLock()
	err := check()
	r.store.mu.RUnlock()
	if err != nil {
		return err
	}

	return r.store.stage(tx, write{
		check: check,
		apply: func() { r.store.lots[stored.ID] = stored },
	})
}

// CompareAndSwap replaces the lot when its stored version still equals
// expectedVersion and the new transfer history extends the stored one.
func (r *LotRepository) CompareAndSwap(ctx context.Context, tx usecase.Transaction, expectedVersion int64, lot *domain.CreditLot) error {
	next := lot.Clone()
	next.Version = expectedVersion + 1

	check := func() error {
		current, ok := r.store.lots[next.ID]
		if !ok {
			return domain.LotError(domain.ErrLotNotFound, next.ID, "", "no such lot")
		}
		if current.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if !current.IsHistoryPrefixOf(next) {
			return domain.LotError(domain.ErrStateConflict, next.ID, domain.InvariantAppendOnlyHistory,
				"transfer history may only be appended to")
		}
		return nil
	}

	r.store.mu.RLock()
	err := check()
	r.store.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := r.store.stage(tx, write{
		check: check,
		apply: func() { r.store.lots[next.ID] = next },
	}); err != nil {
		return err
	}

	lot.Version = next.Version
	return nil
}

// NextSequence hands out increasing numbers per vintage.
func (r *LotRepository) NextSequence(ctx context.Context, vintage int) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.sequences[vintage]++
	return r.store.sequences[vintage], nil
}
