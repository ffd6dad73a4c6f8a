package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/usecase"
)

type stubLedger struct {
	mu        sync.Mutex
	calls     []string
	settleErr error
}

func (l *stubLedger) ExpireLots(ctx context.Context) (*usecase.ExpiryResult, error) {
	l.record("expire")
	return &usecase.ExpiryResult{Scanned: 2, Expired: []string{"CC-2020-000001"}}, nil
}

func (l *stubLedger) SettlePending(ctx context.Context) (*usecase.SettlementResult, error) {
	l.record("settle")
	if l.settleErr != nil {
		return nil, l.settleErr
	}
	return &usecase.SettlementResult{Confirmed: []string{"CC-2024-000001-0a1b2c3d"}}, nil
}

func (l *stubLedger) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *stubLedger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestSweeperRunOnceSettlesBeforeExpiring(t *testing.T) {
	ledger := &stubLedger{}
	s, err := NewSweeper("@every 1h", ledger, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"settle", "expire"}, ledger.snapshot())
}

func TestSweeperRunOnceStopsOnSettleError(t *testing.T) {
	ledger := &stubLedger{settleErr: errors.New("store down")}
	s, err := NewSweeper("@every 1h", ledger, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"settle"}, ledger.snapshot())
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper("every now and then", &stubLedger{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	ledger := &stubLedger{}
	s, err := NewSweeper("@every 1s", ledger, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return len(ledger.snapshot()) >= 2
	}, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
}
