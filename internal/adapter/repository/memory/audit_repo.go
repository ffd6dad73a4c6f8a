package memory

import (
	"context"
	"sort"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	store *Store
}

// CreateTx buffers log until tx commits.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	stored := *log
	return r.store.stage(tx, write{
		apply: func() { r.store.audit = append(r.store.audit, &stored) },
	})
}

// List returns audit logs matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.AuditLog, 0)
	for _, l := range r.store.audit {
		switch {
		case filter.UserID != "" && l.UserID != filter.UserID:
			continue
		case filter.Action != "" && l.Action != filter.Action:
			continue
		case filter.ResourceType != "" && l.ResourceType != filter.ResourceType:
			continue
		case filter.ResourceID != "" && l.ResourceID != filter.ResourceID:
			continue
		case filter.StartDate != nil && l.CreatedAt.Before(*filter.StartDate):
			continue
		case filter.EndDate != nil && l.CreatedAt.After(*filter.EndDate):
			continue
		}
		c := *l
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if filter.Offset >= len(result) {
		return []*domain.AuditLog{}, nil
	}
	result = result[filter.Offset:]
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
