package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/adapter/repository/memory"
	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/metrics"
	"github.com/iho/carbonledger/internal/infrastructure/retry"
	"github.com/iho/carbonledger/internal/usecase"
)

var (
	issuer   = domain.Caller{ID: "registry", Role: domain.RoleIssuer}
	verifier = domain.Caller{ID: "verifier-1", Role: domain.RoleVerifier}
	admin    = domain.Caller{ID: "ops", Role: domain.RoleAdmin}
)

func trader(id string) domain.Caller {
	return domain.Caller{ID: id, Role: domain.RoleTrader}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type counterIDs struct {
	n atomic.Int64
}

func (g *counterIDs) Generate() string {
	return fmt.Sprintf("id-%06d", g.n.Add(1))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *memory.Store
	clock *testClock
	svc   *usecase.LedgerService
}

type fixtureOption func(*usecase.Dependencies)

func withAnchor(a usecase.Anchor) fixtureOption {
	return func(d *usecase.Dependencies) { d.Anchor = a }
}

func withCache(c usecase.Cache) fixtureOption {
	return func(d *usecase.Dependencies) { d.Cache = c }
}

func withLots(wrap func(usecase.LotRepository) usecase.LotRepository) fixtureOption {
	return func(d *usecase.Dependencies) { d.Lots = wrap(d.Lots) }
}

// conflictingLots fails every CompareAndSwap with a version conflict once
// conflicting is set.
type conflictingLots struct {
	usecase.LotRepository
	conflicting atomic.Bool
	swaps       atomic.Int32
}

func (r *conflictingLots) CompareAndSwap(ctx context.Context, tx usecase.Transaction, expectedVersion int64, lot *domain.CreditLot) error {
	if !r.conflicting.Load() {
		return r.LotRepository.CompareAndSwap(ctx, tx, expectedVersion, lot)
	}
	r.swaps.Add(1)
	return domain.ErrVersionConflict
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	deps := usecase.Dependencies{
		TxManager: store.TxManager(),
		Lots:      store.Lots(),
		Outbox:    store.Outbox(),
		Audit:     store.Audit(),
		IDGen:     &counterIDs{},
		Retrier: retry.NewRetrier(retry.Config{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxElapsedTime:  time.Second,
		}, nil, zerolog.Nop()),
		Metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
		Logger:  zerolog.Nop(),
		Clock:   clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc := usecase.NewLedgerService(deps, usecase.Options{})
	t.Cleanup(svc.Wait)
	return &fixture{store: store, clock: clock, svc: svc}
}

// issueVerified issues amount to owner and verifies it.
func (f *fixture) issueVerified(t *testing.T, owner, amount string) *domain.CreditLot {
	t.Helper()
	lot := f.issue(t, owner, amount)
	verified, err := f.svc.Verify(context.Background(), verifier, usecase.VerifyInput{LotID: lot.ID, Body: "Verra"})
	require.NoError(t, err)
	return verified
}

func (f *fixture) issue(t *testing.T, owner, amount string) *domain.CreditLot {
	t.Helper()
	lot, err := f.svc.Issue(context.Background(), issuer, usecase.IssueInput{
		Owner:       owner,
		Amount:      dec(amount),
		VintageYear: 2024,
		Methodology: domain.MethodologyDirectAirCapture,
		Standard:    domain.StandardVerraVCS,
		ProjectID:   "proj-1",
		ValidUntil:  f.clock.Now().AddDate(2, 0, 0),
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) lot(t *testing.T, id string) *domain.CreditLot {
	t.Helper()
	lot, err := f.svc.GetLot(context.Background(), id)
	require.NoError(t, err)
	return lot
}
