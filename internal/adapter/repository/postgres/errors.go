package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/carbonledger/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsTransientError reports errors the database expects the client to retry.
func IsTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// IsRetryable covers both lost optimistic races and transient database failures.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || IsTransientError(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
