package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferRecord is one immutable entry in a lot's transfer history.
// ChildLotID is set when the amount left the lot through a split.
type TransferRecord struct {
	TransactionID string           `json:"transaction_id"`
	From          string           `json:"from"`
	To            string           `json:"to"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Type          TransferType     `json:"type"`
	ChildLotID    string           `json:"child_lot_id,omitempty"`
	BidID         string           `json:"bid_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Validate checks a transfer request before it touches a lot.
func (r *TransferRecord) Validate() error {
	if r.To == "" {
		return &LedgerError{Kind: ErrValidation, Invariant: InvariantInput, Detail: "recipient is required"}
	}
	if r.From == r.To {
		return &LedgerError{Kind: ErrValidation, Invariant: InvariantSingleOwner, Detail: "recipient is already the owner"}
	}
	if !r.Amount.IsPositive() {
		return &LedgerError{Kind: ErrValidation, Invariant: InvariantInput, Detail: "amount must be positive"}
	}
	if r.Price != nil && r.Price.IsNegative() {
		return &LedgerError{Kind: ErrValidation, Invariant: InvariantInput, Detail: "price must not be negative"}
	}
	if !r.Type.IsValid() {
		return &LedgerError{Kind: ErrValidation, Invariant: InvariantInput, Detail: "unknown transfer type"}
	}
	return nil
}

// Equal compares records field by field; decimals are compared by value.
func (r TransferRecord) Equal(o TransferRecord) bool {
	if r.TransactionID != o.TransactionID || r.From != o.From || r.To != o.To ||
		r.Type != o.Type || r.ChildLotID != o.ChildLotID || r.BidID != o.BidID ||
		r.Reason != o.Reason || !r.Timestamp.Equal(o.Timestamp) || !r.Amount.Equal(o.Amount) {
		return false
	}
	if (r.Price == nil) != (o.Price == nil) {
		return false
	}
	return r.Price == nil || r.Price.Equal(*o.Price)
}

func (r TransferRecord) clone() TransferRecord {
	r.Price = cloneDecimal(r.Price)
	return r
}
