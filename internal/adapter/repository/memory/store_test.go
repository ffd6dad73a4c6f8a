package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/domain"
)

func newLot(id, owner string) *domain.CreditLot {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.CreditLot{
		ID:                 id,
		Settlement:         domain.SettlementSettled,
		TotalIssuedAmount:  decimal.NewFromInt(1000),
		CurrentOwner:       owner,
		OriginalOwner:      owner,
		VintageYear:        2024,
		Methodology:        domain.MethodologyReforestation,
		Standard:           domain.StandardVerraVCS,
		ValidFrom:          now,
		ValidUntil:         now.AddDate(5, 0, 0),
		VerificationStatus: domain.VerificationVerified,
		Market:             domain.Market{Bids: []domain.Bid{}},
		TransferHistory:    []domain.TransferRecord{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func create(t *testing.T, s *Store, lot *domain.CreditLot) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Lots().Create(ctx, tx, lot))
	require.NoError(t, tx.Commit(ctx))
}

func TestLotRepository_CreateAndGet(t *testing.T) {
	s := NewStore()
	create(t, s, newLot("CC-2024-000001", "alice"))

	got, err := s.Lots().GetByID(context.Background(), "CC-2024-000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "alice", got.CurrentOwner)

	// returned lots are copies
	got.CurrentOwner = "mallory"
	again, err := s.Lots().GetByID(context.Background(), "CC-2024-000001")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.CurrentOwner)
}

func TestLotRepository_CreateDuplicate(t *testing.T) {
	s := NewStore()
	create(t, s, newLot("CC-1", "alice"))

	ctx := context.Background()
	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	err = s.Lots().Create(ctx, tx, newLot("CC-1", "bob"))
	assert.True(t, errors.Is(err, domain.ErrLotExists))
}

func TestLotRepository_GetMissing(t *testing.T) {
	_, err := NewStore().Lots().GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrLotNotFound))
}

func TestLotRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	create(t, s, newLot("CC-1", "alice"))
	repo := s.Lots()

	lot, err := repo.GetByID(ctx, "CC-1")
	require.NoError(t, err)
	lot.CurrentOwner = "bob"

	tx, _ := s.TxManager().Begin(ctx)
	require.NoError(t, repo.CompareAndSwap(ctx, tx, 1, lot))
	assert.Equal(t, int64(2), lot.Version)

	// not visible before commit
	stored, _ := repo.GetByID(ctx, "CC-1")
	assert.Equal(t, "alice", stored.CurrentOwner)

	require.NoError(t, tx.Commit(ctx))
	stored, _ = repo.GetByID(ctx, "CC-1")
	assert.Equal(t, "bob", stored.CurrentOwner)
	assert.Equal(t, int64(2), stored.Version)

	stale := stored.Clone()
	tx, _ = s.TxManager().Begin(ctx)
	err = repo.CompareAndSwap(ctx, tx, 1, stale)
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))
}

func TestLotRepository_ConflictDetectedAtCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	create(t, s, newLot("CC-1", "alice"))
	repo := s.Lots()

	first, _ := repo.GetByID(ctx, "CC-1")
	second, _ := repo.GetByID(ctx, "CC-1")

	tx1, _ := s.TxManager().Begin(ctx)
	tx2, _ := s.TxManager().Begin(ctx)
	first.CurrentOwner = "bob"
	second.CurrentOwner = "carol"
	require.NoError(t, repo.CompareAndSwap(ctx, tx1, 1, first))
	require.NoError(t, repo.CompareAndSwap(ctx, tx2, 1, second))

	require.NoError(t, tx1.Commit(ctx))
	err := tx2.Commit(ctx)
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	stored, _ := repo.GetByID(ctx, "CC-1")
	assert.Equal(t, "bob", stored.CurrentOwner)
}

func TestLotRepository_RefusesHistoryRewrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	lot := newLot("CC-1", "alice")
	lot.TransferHistory = []domain.TransferRecord{{
		TransactionID: "tx-1", From: "alice", To: "alice",
		Amount: decimal.NewFromInt(10), Type: domain.TransferTypeRetirement,
	}}
	create(t, s, lot)

	rewritten, _ := s.Lots().GetByID(ctx, "CC-1")
	rewritten.TransferHistory[0].Amount = decimal.NewFromInt(1)

	tx, _ := s.TxManager().Begin(ctx)
	err := s.Lots().CompareAndSwap(ctx, tx, 1, rewritten)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	tx, _ := s.TxManager().Begin(ctx)
	require.NoError(t, s.Lots().Create(ctx, tx, newLot("CC-1", "alice")))
	require.NoError(t, s.Outbox().Create(ctx, tx, domain.NewLotEvent("ev-1", "CC-1", domain.EventTypeCreditIssued, nil, time.Now())))
	require.NoError(t, tx.Rollback(ctx))

	_, err := s.Lots().GetByID(ctx, "CC-1")
	assert.True(t, errors.Is(err, domain.ErrLotNotFound))
	events, _ := s.Outbox().GetUnpublished(ctx, 10)
	assert.Empty(t, events)

	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
}

func TestLotRepository_Query(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i, owner := range []string{"alice", "bob", "alice"} {
		lot := newLot("CC-"+string(rune('a'+i)), owner)
		if i == 2 {
			price := decimal.NewFromInt(20)
			lot.Market.Listed = true
			lot.Market.AskingPrice = &price
		}
		create(t, s, lot)
	}

	lots, err := s.Lots().Query(ctx, domain.LotFilter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "CC-a", lots[0].ID)

	listed := true
	lots, err = s.Lots().Query(ctx, domain.LotFilter{Listed: &listed})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "CC-c", lots[0].ID)

	lots, err = s.Lots().Query(ctx, domain.LotFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "CC-b", lots[0].ID)
}

func TestLotRepository_NextSequence(t *testing.T) {
	repo := NewStore().Lots()
	ctx := context.Background()

	a, _ := repo.NextSequence(ctx, 2024)
	b, _ := repo.NextSequence(ctx, 2024)
	c, _ := repo.NextSequence(ctx, 2023)
	assert.Equal(t, []int64{1, 2, 1}, []int64{a, b, c})
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"ev-1", "ev-2"} {
		ev := domain.NewLotEvent(id, "CC-1", domain.EventTypeCreditIssued, nil, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Outbox().Create(ctx, nil, ev))
	}

	events, err := s.Outbox().GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].ID)

	require.NoError(t, s.Outbox().MarkPublished(ctx, "ev-1", now))
	events, _ = s.Outbox().GetUnpublished(ctx, 10)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-2", events[0].ID)

	byLot, _ := s.Outbox().GetByAggregate(ctx, domain.AggregateTypeLot, "CC-1", 10, 0)
	assert.Len(t, byLot, 2)

	require.NoError(t, s.Outbox().DeletePublished(ctx, now.Add(time.Minute)))
	byLot, _ = s.Outbox().GetByAggregate(ctx, domain.AggregateTypeLot, "CC-1", 10, 0)
	assert.Len(t, byLot, 1)
}

func TestAuditRepository_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	logs := []*domain.AuditLog{
		{ID: "a1", UserID: "alice", Action: "lot.issue", ResourceID: "CC-1", CreatedAt: now},
		{ID: "a2", UserID: "bob", Action: "lot.transfer", ResourceID: "CC-1", CreatedAt: now.Add(time.Minute)},
	}
	for _, l := range logs {
		require.NoError(t, s.Audit().CreateTx(ctx, nil, l))
	}

	all, err := s.Audit().List(ctx, domain.AuditFilter{ResourceID: "CC-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ID)

	bob, _ := s.Audit().List(ctx, domain.AuditFilter{UserID: "bob"})
	require.Len(t, bob, 1)
}
