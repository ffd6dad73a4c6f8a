package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
	"github.com/iho/carbonledger/internal/usecase/mocks"
)

func TestListMarketplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := trader("seller")

	prices := []string{"30", "12", "25"}
	ids := make([]string, len(prices))
	for i, price := range prices {
		lot := f.issueVerified(t, seller.ID, "100")
		ids[i] = lot.ID
		_, err := f.svc.ListForSale(ctx, seller, usecase.ListInput{LotID: lot.ID, AskingPrice: dec(price)})
		require.NoError(t, err)
	}
	f.issueVerified(t, seller.ID, "100")

	lots, err := f.svc.ListMarketplace(ctx, usecase.MarketFilter{})
	require.NoError(t, err)
	require.Len(t, lots, 3)
	assert.Equal(t, []string{ids[1], ids[2], ids[0]}, []string{lots[0].ID, lots[1].ID, lots[2].ID})

	lots, err = f.svc.ListMarketplace(ctx, usecase.MarketFilter{MaxAskingPrice: ptr(dec("25"))})
	require.NoError(t, err)
	assert.Len(t, lots, 2)

	lots, err = f.svc.ListMarketplace(ctx, usecase.MarketFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, ids[0], lots[0].ID)

	stats, err := f.svc.GetMarketStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ListingCount)
	assert.True(t, stats.TotalListed.Equal(dec("300")))
	assert.True(t, stats.MinPrice.Equal(dec("12")))
	assert.True(t, stats.MaxPrice.Equal(dec("30")))
	assert.True(t, stats.AvgPrice.Equal(dec("22.3333")))

	// expired listings drop out before the sweep runs
	f.clock.Advance(3 * 365 * 24 * time.Hour)
	lots, err = f.svc.ListMarketplace(ctx, usecase.MarketFilter{})
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestListMarketplace_PagesInTheStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockLotReader(ctrl)
	f := newFixture(t, func(d *usecase.Dependencies) { d.Reader = reader })

	var got domain.LotFilter
	reader.EXPECT().Query(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, filter domain.LotFilter) ([]*domain.CreditLot, error) {
			got = filter
			return []*domain.CreditLot{}, nil
		})

	_, err := f.svc.ListMarketplace(context.Background(), usecase.MarketFilter{Standard: domain.StandardGoldStandard, Limit: 5, Offset: 10})
	require.NoError(t, err)

	assert.True(t, got.OrderByAskingPrice)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 10, got.Offset)
	assert.Equal(t, domain.StandardGoldStandard, got.Standard)
	assert.Equal(t, domain.VerificationVerified, got.VerificationStatus)
	require.NotNil(t, got.Listed)
	assert.True(t, *got.Listed)
	require.NotNil(t, got.ValidUntilAfter)
	assert.True(t, got.ValidUntilAfter.Equal(f.clock.Now()))
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lot := f.issueVerified(t, "alice", "100")
	_, err := f.svc.Transfer(ctx, trader("alice"), usecase.TransferInput{LotID: lot.ID, To: "bob", Amount: dec("40")})
	require.NoError(t, err)

	alice, err := f.svc.ListByOwner(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, alice, 1)

	bob, err := f.svc.ListByOwner(ctx, "bob", 0, 0)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, lot.ID, bob[0].ParentLotID)

	_, err = f.svc.ListByOwner(ctx, "", 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetExpiring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lot := f.issueVerified(t, "alice", "100")

	soon, err := f.svc.GetExpiring(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, soon)

	f.clock.Advance(2*365*24*time.Hour - 10*24*time.Hour)
	soon, err = f.svc.GetExpiring(ctx, 30)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, lot.ID, soon[0].ID)

	for _, days := range []int{0, -1, usecase.MaxExpiringDaysAhead + 1} {
		_, err := f.svc.GetExpiring(ctx, days)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestGetMarketStats_Cache(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	f := newFixture(t, withCache(cache))

	cached, _ := json.Marshal(domain.MarketStats{ListingCount: 7, TotalListed: dec("70")})
	cache.EXPECT().Get(gomock.Any(), "market:stats").Return(cached, nil)

	stats, err := f.svc.GetMarketStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.ListingCount)

	cache.EXPECT().Get(gomock.Any(), "market:stats").Return(nil, usecase.ErrCacheMiss)
	cache.EXPECT().Set(gomock.Any(), "market:stats", gomock.Any(), usecase.DefaultMarketStatsTTL).Return(nil)

	stats, err = f.svc.GetMarketStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ListingCount)
}

func TestMarketChangesInvalidateStats(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	f := newFixture(t, withCache(cache))
	lot := f.issueVerified(t, "alice", "100")

	cache.EXPECT().Delete(gomock.Any(), "market:stats").Return(errors.New("redis down")).Times(2)

	_, err := f.svc.ListForSale(ctx, trader("alice"), usecase.ListInput{LotID: lot.ID, AskingPrice: dec("9")})
	require.NoError(t, err)
	_, err = f.svc.Delist(ctx, trader("alice"), lot.ID)
	require.NoError(t, err)
}

func TestAnchoringIsFireAndForget(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	anchor := mocks.NewMockAnchor(ctrl)

	anchor.EXPECT().RecordExternalEvent(gomock.Any(), gomock.Any(), "", domain.EventTypeCreditIssued).Return(nil)
	anchor.EXPECT().RecordExternalEvent(gomock.Any(), gomock.Any(), "", domain.EventTypeVerificationChanged).Return(nil)
	anchor.EXPECT().
		RecordExternalEvent(gomock.Any(), gomock.Any(), gomock.Any(), domain.EventTypeCreditTransferred).
		Return(errors.New("anchor unreachable"))

	f := newFixture(t, withAnchor(anchor))
	lot := f.issueVerified(t, "alice", "100")

	res, err := f.svc.Transfer(ctx, trader("alice"), usecase.TransferInput{LotID: lot.ID, To: "bob", Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Lot.CurrentOwner)

	f.svc.Wait()
}

func TestSettlePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parent := f.issueVerified(t, "alice", "100")
	now := f.clock.Now()

	// the parent recorded the split but the child was never confirmed
	stuck := domain.NewChildLot(parent, dec("30"), "erin", "tx-stuck", now)
	require.NoError(t, f.store.Lots().Create(ctx, nil, stuck))
	updated := parent.Clone()
	require.NoError(t, updated.AppendTransfer(domain.TransferRecord{
		TransactionID: "tx-stuck",
		From:          "alice",
		To:            "erin",
		Amount:        dec("30"),
		Type:          domain.TransferTypeTransfer,
		ChildLotID:    stuck.ID,
		Timestamp:     now,
	}))
	require.NoError(t, f.store.Lots().CompareAndSwap(ctx, nil, parent.Version, updated))

	// the parent write never happened
	orphan := domain.NewChildLot(parent, dec("10"), "carol", "tx-lost", now)
	require.NoError(t, f.store.Lots().Create(ctx, nil, orphan))

	result, err := f.svc.SettlePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Confirmed)
	assert.Empty(t, result.Voided)

	f.clock.Advance(usecase.DefaultSettleGracePeriod + time.Second)
	result, err = f.svc.SettlePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.ID}, result.Confirmed)
	assert.Equal(t, []string{orphan.ID}, result.Voided)
	assert.Empty(t, result.Failed)

	assert.Equal(t, domain.SettlementSettled, f.lot(t, stuck.ID).Settlement)
	assert.Equal(t, domain.SettlementVoided, f.lot(t, orphan.ID).Settlement)

	_, err = f.svc.Transfer(ctx, trader("carol"), usecase.TransferInput{LotID: orphan.ID, To: "dave", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	report, err := f.svc.CheckConservation(ctx, parent.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced, report.Discrepancies)
	assert.Equal(t, 2, report.Lots)
}
