package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/carbonledger/internal/domain"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Config controls attempts and backoff.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig allows three attempts in total.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
	}
}

// Retrier implements usecase.Retrier with exponential backoff.
type Retrier struct {
	cfg       Config
	retryable Classifier
	logger    zerolog.Logger
}

// NewRetrier creates a retrier. A nil classifier retries version conflicts only.
func NewRetrier(cfg Config, retryable Classifier, logger zerolog.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if retryable == nil {
		retryable = IsVersionConflict
	}
	return &Retrier{cfg: cfg, retryable: retryable, logger: logger}
}

// Retry executes an operation with exponential backoff on retryable errors.
// The last error is returned once the attempts are used up.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	attempt := 0

	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}

		if !r.retryable(err) {
			return backoff.Permanent(err)
		}

		if attempt >= r.cfg.MaxAttempts {
			return backoff.Permanent(err)
		}

		r.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Msg("retryable error, retrying")

		return err
	}, backoff.WithContext(b, ctx))
}

// IsVersionConflict matches optimistic concurrency failures.
func IsVersionConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}

// Any combines classifiers.
func Any(classifiers ...Classifier) Classifier {
	return func(err error) bool {
		for _, c := range classifiers {
			if c(err) {
				return true
			}
		}
		return false
	}
}
