package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// CreditLot is a unit of issued credit amount with exactly one current owner.
// It is persisted as a single document; every change goes through one
// compare-and-swap against Version.
type CreditLot struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"project_id,omitempty"`
	ParentLotID         string              `json:"parent_lot_id,omitempty"`
	OriginTransactionID string              `json:"origin_transaction_id,omitempty"`
	Settlement          SettlementState     `json:"settlement"`
	TotalIssuedAmount   decimal.Decimal     `json:"total_issued_amount"`
	CurrentOwner        string              `json:"current_owner"`
	OriginalOwner       string              `json:"original_owner"`
	VintageYear         int                 `json:"vintage_year"`
	Methodology         Methodology         `json:"methodology"`
	Standard            Standard            `json:"standard"`
	ValidFrom           time.Time           `json:"valid_from"`
	ValidUntil          time.Time           `json:"valid_until"`
	VerificationStatus  VerificationStatus  `json:"verification_status"`
	VerificationHistory []VerificationEntry `json:"verification_history"`
	NextVerificationDue *time.Time          `json:"next_verification_due,omitempty"`
	Retirement          Retirement          `json:"retirement"`
	Market              Market              `json:"market"`
	TransferHistory     []TransferRecord    `json:"transfer_history"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Retirement is terminal once IsRetired is set.
type Retirement struct {
	IsRetired bool       `json:"is_retired"`
	RetiredBy string     `json:"retired_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// Market holds the listing and the bids placed against it. Bids outlive a
// listing; they are only resolved when someone acts on them.
type Market struct {
	Listed       bool             `json:"listed"`
	AskingPrice  *decimal.Decimal `json:"asking_price,omitempty"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	ListedDate   *time.Time       `json:"listed_date,omitempty"`
	Bids         []Bid            `json:"bids"`
}

// VerificationEntry is one transition in the verification workflow.
type VerificationEntry struct {
	From   VerificationStatus `json:"from"`
	To     VerificationStatus `json:"to"`
	Actor  string             `json:"actor"`
	Body   string             `json:"body,omitempty"`
	Report string             `json:"report,omitempty"`
	Reason string             `json:"reason,omitempty"`
	At     time.Time          `json:"at"`
}

// SplitAmount is the amount that left the lot into child lots.
func (l *CreditLot) SplitAmount() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.TransferHistory {
		if r.ChildLotID != "" {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// RetiredAmount is the amount permanently removed from circulation on this lot.
func (l *CreditLot) RetiredAmount() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.TransferHistory {
		if r.Type == TransferTypeRetirement {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// AvailableAmount is what the current owner can still transfer, list or retire.
// Records that moved the whole lot to a new owner do not reduce it.
func (l *CreditLot) AvailableAmount() decimal.Decimal {
	return l.TotalIssuedAmount.Sub(l.SplitAmount()).Sub(l.RetiredAmount())
}

// IsExpired reports whether the lot is past its validity window or was swept.
func (l *CreditLot) IsExpired(now time.Time) bool {
	if l.VerificationStatus == VerificationExpired {
		return true
	}
	return !l.ValidUntil.IsZero() && now.After(l.ValidUntil)
}

// CheckMutable returns the first reason the lot cannot be changed at all.
func (l *CreditLot) CheckMutable(now time.Time) error {
	switch {
	case l.Settlement == SettlementVoided:
		return LotError(ErrStateConflict, l.ID, InvariantConservation, "lot was voided")
	case l.Settlement == SettlementPending:
		return LotError(ErrStateConflict, l.ID, InvariantConservation, "lot is awaiting settlement")
	case l.Retirement.IsRetired:
		return LotError(ErrAlreadyRetired, l.ID, InvariantRetirementFinal, "retired by %s", l.Retirement.RetiredBy)
	case l.IsExpired(now):
		return LotError(ErrExpired, l.ID, InvariantValidity, "valid until %s", l.ValidUntil.Format(time.RFC3339))
	}
	return nil
}

// CheckAmount validates 0 < amount <= available.
func (l *CreditLot) CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return LotError(ErrValidation, l.ID, InvariantInput, "amount must be positive")
	}
	available := l.AvailableAmount()
	if amount.GreaterThan(available) {
		return LotError(ErrInsufficientAmount, l.ID, InvariantAvailableAmount,
			"requested %s exceeds available %s", amount, available)
	}
	return nil
}

// IsFormerOwner reports whether ownerID held this lot before an in-place transfer.
func (l *CreditLot) IsFormerOwner(ownerID string) bool {
	for _, r := range l.TransferHistory {
		if r.ChildLotID == "" && r.Type.MovesOwnership() && r.From == ownerID {
			return true
		}
	}
	return false
}

// FindTransaction returns the record written by transactionID.
func (l *CreditLot) FindTransaction(transactionID string) (TransferRecord, bool) {
	for _, r := range l.TransferHistory {
		if r.TransactionID == transactionID {
			return r, true
		}
	}
	return TransferRecord{}, false
}

// AppendTransfer adds rec to the history after checking the transaction id is new
// and that the amount it removes is still available.
func (l *CreditLot) AppendTransfer(rec TransferRecord) error {
	if rec.TransactionID == "" {
		return LotError(ErrValidation, l.ID, InvariantAppendOnlyHistory, "transaction id is required")
	}
	if _, ok := l.FindTransaction(rec.TransactionID); ok {
		return LotError(ErrStateConflict, l.ID, InvariantAppendOnlyHistory, "transaction %s already recorded", rec.TransactionID)
	}
	if rec.ChildLotID != "" || rec.Type == TransferTypeRetirement {
		if err := l.CheckAmount(rec.Amount); err != nil {
			return err
		}
	}
	l.TransferHistory = append(l.TransferHistory, rec)
	return nil
}

// FindBid returns the index of bidID in the bid list.
func (l *CreditLot) FindBid(bidID string) (int, bool) {
	for i := range l.Market.Bids {
		if l.Market.Bids[i].ID == bidID {
			return i, true
		}
	}
	return -1, false
}

// ExpireActiveBids closes every still-active bid, used when the lot reaches a
// terminal state. It returns how many bids were closed.
func (l *CreditLot) ExpireActiveBids(now time.Time) int {
	n := 0
	for i := range l.Market.Bids {
		if l.Market.Bids[i].Status == BidStatusActive {
			l.Market.Bids[i].Status = BidStatusExpired
			l.Market.Bids[i].UpdatedAt = now
			n++
		}
	}
	return n
}

// ClearListing removes the listing. Bids are left as they are.
func (l *CreditLot) ClearListing() {
	l.Market.Listed = false
	l.Market.AskingPrice = nil
	l.Market.ReservePrice = nil
	l.Market.ListedDate = nil
}

// RecordVerification appends a workflow transition and moves the status.
func (l *CreditLot) RecordVerification(to VerificationStatus, actor, body, report, reason string, at time.Time) {
	l.VerificationHistory = append(l.VerificationHistory, VerificationEntry{
		From:   l.VerificationStatus,
		To:     to,
		Actor:  actor,
		Body:   body,
		Report: report,
		Reason: reason,
		At:     at,
	})
	l.VerificationStatus = to
}

// IsHistoryPrefixOf reports whether every record of l appears unchanged at the
// same position in next. Stores use it to refuse history rewrites.
func (l *CreditLot) IsHistoryPrefixOf(next *CreditLot) bool {
	if len(next.TransferHistory) < len(l.TransferHistory) {
		return false
	}
	for i, r := range l.TransferHistory {
		if !r.Equal(next.TransferHistory[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, so an attempt can be mutated without touching the read snapshot.
func (l *CreditLot) Clone() *CreditLot {
	c := *l
	c.VerificationHistory = append([]VerificationEntry(nil), l.VerificationHistory...)
	c.TransferHistory = make([]TransferRecord, len(l.TransferHistory))
	for i, r := range l.TransferHistory {
		c.TransferHistory[i] = r.clone()
	}
	c.Market.Bids = append([]Bid(nil), l.Market.Bids...)
	c.Market.AskingPrice = cloneDecimal(l.Market.AskingPrice)
	c.Market.ReservePrice = cloneDecimal(l.Market.ReservePrice)
	c.Market.ListedDate = cloneTime(l.Market.ListedDate)
	c.NextVerificationDue = cloneTime(l.NextVerificationDue)
	c.Retirement.Date = cloneTime(l.Retirement.Date)
	return &c
}

// NewChildLot carves amount out of parent for toOwner. The child starts
// pending until the parent's split record is confirmed.
func NewChildLot(parent *CreditLot, amount decimal.Decimal, toOwner, transactionID string, now time.Time) *CreditLot {
	return &CreditLot{
		ID:                  ChildLotID(parent.ID, amount, transactionID),
		ProjectID:           parent.ProjectID,
		ParentLotID:         parent.ID,
		OriginTransactionID: transactionID,
		Settlement:          SettlementPending,
		TotalIssuedAmount:   amount,
		CurrentOwner:        toOwner,
		OriginalOwner:       parent.OriginalOwner,
		VintageYear:         parent.VintageYear,
		Methodology:         parent.Methodology,
		Standard:            parent.Standard,
		ValidFrom:           parent.ValidFrom,
		ValidUntil:          parent.ValidUntil,
		VerificationStatus:  parent.VerificationStatus,
		VerificationHistory: append([]VerificationEntry(nil), parent.VerificationHistory...),
		NextVerificationDue: cloneTime(parent.NextVerificationDue),
		Market:              Market{Bids: []Bid{}},
		TransferHistory:     []TransferRecord{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ChildLotID derives the id of the lot produced by splitting amount off
// parentID in transactionID. The same inputs always give the same id.
func ChildLotID(parentID string, amount decimal.Decimal, transactionID string) string {
	h := sha256.New()
	h.Write([]byte(parentID))
	h.Write([]byte{0})
	h.Write([]byte(amount.String()))
	h.Write([]byte{0})
	h.Write([]byte(transactionID))
	return parentID + "-" + hex.EncodeToString(h.Sum(nil)[:4])
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
