package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/postgres/generated"
	"github.com/iho/carbonledger/internal/usecase"
)

const defaultAuditPageSize = 100

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	queries *generated.Queries
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return newAuditRepository(pool)
}

func newAuditRepository(db generated.DBTX) *AuditRepository {
	return &AuditRepository{queries: generated.New(db)}
}

// CreateTx inserts an audit entry inside the transaction of the change it describes.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	before, err := marshalState(log.BeforeState)
	if err != nil {
		return err
	}
	after, err := marshalState(log.AfterState)
	if err != nil {
		return err
	}

	return generated.New(tx.(*Tx).PgxTx()).CreateAuditLog(ctx, generated.CreateAuditLogParams{
		ID:           log.ID,
		UserID:       log.UserID,
		Action:       log.Action,
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		RequestID:    textOrNull(log.RequestID),
		BeforeState:  before,
		AfterState:   after,
		Status:       log.Status,
		ErrorMessage: textOrNull(log.ErrorMessage),
		CreatedAt:    timeToPgTimestamptz(log.CreatedAt),
	})
}

// List retrieves audit logs with filtering, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}

	rows, err := r.queries.ListAuditLogs(ctx, generated.ListAuditLogsParams{
		UserID:       textOrNull(filter.UserID),
		Action:       textOrNull(filter.Action),
		ResourceType: textOrNull(filter.ResourceType),
		ResourceID:   textOrNull(filter.ResourceID),
		StartDate:    timePtrToPgTimestamptz(filter.StartDate),
		EndDate:      timePtrToPgTimestamptz(filter.EndDate),
		RowLimit:     int32(limit),
		RowOffset:    int32(filter.Offset),
	})
	if err != nil {
		return nil, err
	}

	logs := make([]*domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		log := &domain.AuditLog{
			ID:           row.ID,
			UserID:       row.UserID,
			Action:       row.Action,
			ResourceType: row.ResourceType,
			ResourceID:   row.ResourceID,
			RequestID:    row.RequestID.String,
			Status:       row.Status,
			ErrorMessage: row.ErrorMessage.String,
			CreatedAt:    row.CreatedAt.Time,
		}
		if row.BeforeState != nil {
			_ = json.Unmarshal(row.BeforeState, &log.BeforeState)
		}
		if row.AfterState != nil {
			_ = json.Unmarshal(row.AfterState, &log.AfterState)
		}
		logs = append(logs, log)
	}

	return logs, nil
}

func marshalState(state domain.JSON) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}
