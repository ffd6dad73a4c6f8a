package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/carbonledger/internal/domain"
)

// LotReader serves lookups that may tolerate replica lag.
type LotReader interface {
	GetByID(ctx context.Context, id string) (*domain.CreditLot, error)
	Query(ctx context.Context, filter domain.LotFilter) ([]*domain.CreditLot, error)
}

// LotRepository is the primary lot store. Every change to an existing lot is a
// single CompareAndSwap against the version that was read.
type LotRepository interface {
	LotReader
	// Create stores a new lot with version 1. Returns domain.ErrLotExists when the id is taken.
	Create(ctx context.Context, tx Transaction, lot *domain.CreditLot) error
	// CompareAndSwap replaces the lot if its stored version equals expectedVersion
	// and sets lot.Version to the new version. Returns domain.ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, tx Transaction, expectedVersion int64, lot *domain.CreditLot) error
	// NextSequence returns the next issuance sequence number for a vintage.
	NextSequence(ctx context.Context, vintage int) (int64, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation while it fails with a retryable error.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Anchor mirrors committed lot events on an external ledger.
type Anchor interface {
	RecordExternalEvent(ctx context.Context, lotID, transactionID, kind string) error
}

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}
