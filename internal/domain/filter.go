package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotFilter selects lots for secondary lookups. Zero values do not filter.
type LotFilter struct {
	Owner              string
	VerificationStatus VerificationStatus
	VintageYear        int
	Methodology        Methodology
	Standard           Standard
	ParentLotID        string
	Listed             *bool
	Settlement         SettlementState
	ValidUntilBefore   *time.Time
	ValidUntilAfter    *time.Time
	MaxAskingPrice     *decimal.Decimal
	// OrderByAskingPrice sorts cheapest first, unpriced lots last, then by id.
	// Without it results are ordered by id.
	OrderByAskingPrice bool
	Limit              int
	Offset             int
}

// Less orders a before b the way a query using f returns them.
func (f LotFilter) Less(a, b *CreditLot) bool {
	if f.OrderByAskingPrice {
		pa, pb := a.Market.AskingPrice, b.Market.AskingPrice
		switch {
		case pa != nil && pb == nil:
			return true
		case pa == nil && pb != nil:
			return false
		case pa != nil && !pa.Equal(*pb):
			return pa.LessThan(*pb)
		}
	}
	return a.ID < b.ID
}

// Matches applies the filter to a single lot; stores without indexes use it directly.
func (f LotFilter) Matches(l *CreditLot) bool {
	switch {
	case f.Owner != "" && l.CurrentOwner != f.Owner:
		return false
	case f.VerificationStatus != "" && l.VerificationStatus != f.VerificationStatus:
		return false
	case f.VintageYear != 0 && l.VintageYear != f.VintageYear:
		return false
	case f.Methodology != "" && l.Methodology != f.Methodology:
		return false
	case f.Standard != "" && l.Standard != f.Standard:
		return false
	case f.ParentLotID != "" && l.ParentLotID != f.ParentLotID:
		return false
	case f.Listed != nil && l.Market.Listed != *f.Listed:
		return false
	case f.Settlement != "" && l.Settlement != f.Settlement:
		return false
	case f.ValidUntilBefore != nil && !l.ValidUntil.Before(*f.ValidUntilBefore):
		return false
	case f.ValidUntilAfter != nil && !l.ValidUntil.After(*f.ValidUntilAfter):
		return false
	case f.MaxAskingPrice != nil && (l.Market.AskingPrice == nil || l.Market.AskingPrice.GreaterThan(*f.MaxAskingPrice)):
		return false
	}
	return true
}

// MarketStats summarizes active listings.
type MarketStats struct {
	TotalListed  decimal.Decimal `json:"total_listed"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	ListingCount int             `json:"listing_count"`
}

// ComputeMarketStats aggregates listed lots. Prices are averaged per listing.
func ComputeMarketStats(lots []*CreditLot) MarketStats {
	stats := MarketStats{
		TotalListed: decimal.Zero,
		AvgPrice:    decimal.Zero,
		MinPrice:    decimal.Zero,
		MaxPrice:    decimal.Zero,
	}
	sum := decimal.Zero
	for _, l := range lots {
		if !l.Market.Listed || l.Market.AskingPrice == nil {
			continue
		}
		price := *l.Market.AskingPrice
		if stats.ListingCount == 0 || price.LessThan(stats.MinPrice) {
			stats.MinPrice = price
		}
		if stats.ListingCount == 0 || price.GreaterThan(stats.MaxPrice) {
			stats.MaxPrice = price
		}
		stats.ListingCount++
		stats.TotalListed = stats.TotalListed.Add(l.AvailableAmount())
		sum = sum.Add(price)
	}
	if stats.ListingCount > 0 {
		stats.AvgPrice = sum.Div(decimal.NewFromInt(int64(stats.ListingCount))).Round(4)
	}
	return stats
}
