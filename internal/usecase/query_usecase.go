package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// MarketFilter narrows the marketplace listing.
type MarketFilter struct {
	VintageYear    int
	Methodology    domain.Methodology
	Standard       domain.Standard
	MaxAskingPrice *decimal.Decimal
	Limit          int
	Offset         int
}

// QueryUseCase serves read-only lookups. Everything except GetLot may be
// answered from a replica and lag behind the latest write.
type QueryUseCase struct {
	w *lotWriter
}

// NewQueryUseCase creates a new QueryUseCase.
func NewQueryUseCase(deps Dependencies, opts Options) *QueryUseCase {
	return newQueryUseCase(newLotWriter(deps, opts))
}

func newQueryUseCase(w *lotWriter) *QueryUseCase {
	return &QueryUseCase{w: w}
}

// GetLot reads a lot from the primary store.
func (uc *QueryUseCase) GetLot(ctx context.Context, lotID string) (*domain.CreditLot, error) {
	return uc.w.lots.GetByID(ctx, lotID)
}

// ListByOwner returns the settled lots currently held by ownerID, retired ones included.
func (uc *QueryUseCase) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CreditLot, error) {
	if err := domain.ValidateParticipantID("owner", ownerID); err != nil {
		return nil, validationError("", err)
	}
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, validationError("", err)
	}

	return uc.w.reader.Query(ctx, domain.LotFilter{
		Owner:      ownerID,
		Settlement: domain.SettlementSettled,
		Limit:      limit,
		Offset:     offset,
	})
}

// ListMarketplace returns listed lots that can still be bought, cheapest first.
// Ordering and paging happen in the store.
func (uc *QueryUseCase) ListMarketplace(ctx context.Context, filter MarketFilter) ([]*domain.CreditLot, error) {
	limit, offset, err := domain.ValidatePagination(filter.Limit, filter.Offset)
	if err != nil {
		return nil, validationError("", err)
	}

	return uc.listed(ctx, domain.LotFilter{
		VintageYear:        filter.VintageYear,
		Methodology:        filter.Methodology,
		Standard:           filter.Standard,
		MaxAskingPrice:     filter.MaxAskingPrice,
		OrderByAskingPrice: true,
		Limit:              limit,
		Offset:             offset,
	})
}

// GetMarketStats summarizes the active listings. Results are cached for
// MarketStatsTTL and dropped whenever a listing changes.
func (uc *QueryUseCase) GetMarketStats(ctx context.Context) (*domain.MarketStats, error) {
	if stats, ok := uc.cachedStats(ctx); ok {
		return stats, nil
	}

	lots, err := uc.listed(ctx, domain.LotFilter{})
	if err != nil {
		return nil, err
	}
	stats := domain.ComputeMarketStats(lots)

	if uc.w.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := uc.w.cache.Set(ctx, marketStatsCacheKey, data, uc.w.opts.MarketStatsTTL); err != nil {
				uc.w.logger.Warn().Err(err).Msg("failed to cache market stats")
			}
		}
	}

	return &stats, nil
}

// GetExpiring returns verified lots whose validity ends within daysAhead days.
func (uc *QueryUseCase) GetExpiring(ctx context.Context, daysAhead int) ([]*domain.CreditLot, error) {
	if daysAhead <= 0 || daysAhead > MaxExpiringDaysAhead {
		return nil, &domain.LedgerError{
			Kind:      domain.ErrValidation,
			Invariant: domain.InvariantInput,
			Detail:    fmt.Sprintf("days_ahead must be between 1 and %d", MaxExpiringDaysAhead),
		}
	}

	now := uc.w.clock().UTC()
	until := now.Add(time.Duration(daysAhead) * 24 * time.Hour)
	lots, err := uc.w.reader.Query(ctx, domain.LotFilter{
		VerificationStatus: domain.VerificationVerified,
		Settlement:         domain.SettlementSettled,
		ValidUntilAfter:    &now,
		ValidUntilBefore:   &until,
	})
	if err != nil {
		return nil, err
	}

	expiring := make([]*domain.CreditLot, 0, len(lots))
	for _, lot := range lots {
		if !lot.Retirement.IsRetired {
			expiring = append(expiring, lot)
		}
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].ValidUntil.Before(expiring[j].ValidUntil)
	})
	return expiring, nil
}

// listed queries verified, settled lots that are listed and still inside
// their validity window, including ones the sweep has not reached yet.
func (uc *QueryUseCase) listed(ctx context.Context, filter domain.LotFilter) ([]*domain.CreditLot, error) {
	listed := true
	now := uc.w.clock().UTC()
	filter.Listed = &listed
	filter.Settlement = domain.SettlementSettled
	filter.VerificationStatus = domain.VerificationVerified
	filter.ValidUntilAfter = &now

	lots, err := uc.w.reader.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	// a page may come back short if the read model lags a retirement
	active := make([]*domain.CreditLot, 0, len(lots))
	for _, lot := range lots {
		if lot.IsExpired(now) || lot.Retirement.IsRetired || lot.Market.AskingPrice == nil {
			continue
		}
		active = append(active, lot)
	}
	return active, nil
}

func (uc *QueryUseCase) cachedStats(ctx context.Context) (*domain.MarketStats, bool) {
	if uc.w.cache == nil {
		return nil, false
	}

	data, err := uc.w.cache.Get(ctx, marketStatsCacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			uc.w.logger.Warn().Err(err).Msg("market stats cache unavailable")
		}
		uc.observeCache("miss")
		return nil, false
	}

	var stats domain.MarketStats
	if err := json.Unmarshal(data, &stats); err != nil {
		uc.observeCache("miss")
		return nil, false
	}

	uc.observeCache("hit")
	return &stats, true
}

func (uc *QueryUseCase) observeCache(result string) {
	if uc.w.metrics != nil {
		uc.w.metrics.MarketStatsCache.WithLabelValues(result).Inc()
	}
}
