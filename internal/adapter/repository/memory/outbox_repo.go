package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// Create buffers event until tx commits.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	stored := *event
	return r.store.stage(tx, write{
		apply: func() { r.store.events = append(r.store.events, &stored) },
	})
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.OutboxEvent, 0)
	for _, e := range r.store.events {
		if !e.Published {
			c := *e
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkPublished flags an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, e := range r.store.events {
		if e.ID == id {
			at := publishedAt
			e.Published = true
			e.PublishedAt = &at
		}
	}
	return nil
}

// GetByAggregate lists the events of one aggregate in creation order.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.OutboxEvent, 0)
	for _, e := range r.store.events {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			c := *e
			result = append(result, &c)
		}
	}
	if offset >= len(result) {
		return []*domain.OutboxEvent{}, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeletePublished drops events published before the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.events[:0]
	for _, e := range r.store.events {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	r.store.events = kept
	return nil
}
