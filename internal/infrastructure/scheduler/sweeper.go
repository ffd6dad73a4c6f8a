package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iho/carbonledger/internal/usecase"
)

// Ledger is the part of the ledger service the sweep drives.
type Ledger interface {
	ExpireLots(ctx context.Context) (*usecase.ExpiryResult, error)
	SettlePending(ctx context.Context) (*usecase.SettlementResult, error)
}

// Sweeper periodically settles stuck lot splits and expires lots past their validity.
type Sweeper struct {
	cron    *cron.Cron
	ledger  Ledger
	logger  zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewSweeper creates a sweeper that runs on spec, a standard cron expression
// or a descriptor such as "@every 1h". Overlapping runs are skipped.
func NewSweeper(spec string, ledger Ledger, logger zerolog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		ledger:  ledger,
		logger:  logger.With().Str("component", "sweeper").Logger(),
		timeout: 10 * time.Minute,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the schedule. Jobs stop when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.logger.Info().Msg("sweeper started")
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.running = false
	s.logger.Info().Msg("sweeper stopped")
}

// RunOnce performs one sweep: settlement first, so children whose parent
// already recorded the split are confirmed before expiry looks at them.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	settled, err := s.ledger.SettlePending(ctx)
	if err != nil {
		return fmt.Errorf("settle pending lots: %w", err)
	}
	s.logger.Info().
		Int("confirmed", len(settled.Confirmed)).
		Int("voided", len(settled.Voided)).
		Int("failed", len(settled.Failed)).
		Msg("pending lots settled")

	expired, err := s.ledger.ExpireLots(ctx)
	if err != nil {
		return fmt.Errorf("expire lots: %w", err)
	}
	s.logger.Info().
		Int("scanned", expired.Scanned).
		Int("expired", len(expired.Expired)).
		Int("failed", len(expired.Failed)).
		Msg("expiry sweep finished")

	return nil
}

func (s *Sweeper) run() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
	}
}
