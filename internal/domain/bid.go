package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is a prospective buyer's offer against a listed lot.
type Bid struct {
	ID            string          `json:"id"`
	Bidder        string          `json:"bidder"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	Status        BidStatus       `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsActive reports whether the bid can still be accepted, rejected or withdrawn.
func (b *Bid) IsActive() bool {
	return b.Status == BidStatusActive
}

// Total is amount times price.
func (b *Bid) Total() decimal.Decimal {
	return b.Amount.Mul(b.Price)
}
