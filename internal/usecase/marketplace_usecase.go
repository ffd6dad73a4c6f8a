package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// ListInput puts a lot's available amount up for sale.
type ListInput struct {
	LotID        string
	AskingPrice  decimal.Decimal
	ReservePrice *decimal.Decimal
}

// BidInput is a buyer's offer on a listed lot.
type BidInput struct {
	LotID  string
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// MarketplaceUseCase handles listings and bids. Accepting a bid goes through
// the transfer engine as a sale.
//
// Accepting one bid never touches the other active bids; each is checked
// against the remaining amount only when someone tries to accept it.
type MarketplaceUseCase struct {
	w         *lotWriter
	transfers *TransferUseCase
}

// NewMarketplaceUseCase creates a new MarketplaceUseCase.
func NewMarketplaceUseCase(deps Dependencies, opts Options) *MarketplaceUseCase {
	w := newLotWriter(deps, opts)
	return newMarketplaceUseCase(w, newTransferUseCase(w))
}

func newMarketplaceUseCase(w *lotWriter, transfers *TransferUseCase) *MarketplaceUseCase {
	return &MarketplaceUseCase{w: w, transfers: transfers}
}

// ListForSale lists a verified lot owned by the caller.
func (uc *MarketplaceUseCase) ListForSale(ctx context.Context, caller domain.Caller, input ListInput) (*domain.CreditLot, error) {
	if err := domain.ValidatePrice("asking_price", input.AskingPrice); err != nil {
		return nil, validationError(input.LotID, err)
	}
	if input.ReservePrice != nil {
		if err := domain.ValidatePrice("reserve_price", *input.ReservePrice); err != nil {
			return nil, validationError(input.LotID, err)
		}
		if input.ReservePrice.GreaterThan(input.AskingPrice) {
			return nil, domain.LotError(domain.ErrValidation, input.LotID, domain.InvariantListing,
				"reserve price %s exceeds asking price %s", input.ReservePrice, input.AskingPrice)
		}
	}

	c, err := uc.w.update(ctx, "list", caller, input.LotID, func(c *change) error {
		lot := c.lot
		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}
		if err := checkOwner(lot, caller); err != nil {
			return err
		}
		if lot.Market.Listed {
			return domain.LotError(domain.ErrStateConflict, lot.ID, domain.InvariantListing, "lot is already listed")
		}
		if lot.VerificationStatus != domain.VerificationVerified {
			return domain.LotError(domain.ErrNotVerified, lot.ID, domain.InvariantVerification,
				"lot is %s", lot.VerificationStatus)
		}
		if !lot.AvailableAmount().IsPositive() {
			return domain.LotError(domain.ErrInsufficientAmount, lot.ID, domain.InvariantAvailableAmount,
				"nothing left to list")
		}

		asking := input.AskingPrice
		now := c.now
		lot.Market.Listed = true
		lot.Market.AskingPrice = &asking
		lot.Market.ListedDate = &now
		if input.ReservePrice != nil {
			reserve := *input.ReservePrice
			lot.Market.ReservePrice = &reserve
		}

		payload := map[string]any{
			"owner":        lot.CurrentOwner,
			"asking_price": asking.String(),
			"available":    lot.AvailableAmount().String(),
		}
		if input.ReservePrice != nil {
			payload["reserve_price"] = input.ReservePrice.String()
		}
		c.action = domain.AuditActionMarketList
		c.emit(domain.EventTypeLotListed, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.Listings.WithLabelValues("list").Inc()
	}
	uc.w.invalidateMarketStats(ctx)
	return c.lot, nil
}

// Delist clears the listing. Bids keep their status.
func (uc *MarketplaceUseCase) Delist(ctx context.Context, caller domain.Caller, lotID string) (*domain.CreditLot, error) {
	c, err := uc.w.update(ctx, "delist", caller, lotID, func(c *change) error {
		lot := c.lot
		if lot.Retirement.IsRetired {
			return domain.LotError(domain.ErrAlreadyRetired, lot.ID, domain.InvariantRetirementFinal, "lot is retired")
		}
		if !lot.Market.Listed {
			return domain.LotError(domain.ErrNotListed, lot.ID, domain.InvariantListing, "lot is not listed")
		}
		if err := checkOwner(lot, caller); err != nil {
			return err
		}

		lot.ClearListing()
		c.action = domain.AuditActionMarketDelist
		c.emit(domain.EventTypeLotDelisted, map[string]any{"reason": "owner"})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.Listings.WithLabelValues("delist").Inc()
	}
	uc.w.invalidateMarketStats(ctx)
	return c.lot, nil
}

// PlaceBid appends an active bid from the caller.
func (uc *MarketplaceUseCase) PlaceBid(ctx context.Context, caller domain.Caller, input BidInput) (*domain.Bid, error) {
	if err := domain.ValidateParticipantID("bidder", caller.ID); err != nil {
		return nil, validationError(input.LotID, err)
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, validationError(input.LotID, err)
	}
	if err := domain.ValidatePrice("price", input.Price); err != nil {
		return nil, validationError(input.LotID, err)
	}

	bidID := uc.w.idGen.Generate()
	var placed domain.Bid

	_, err := uc.w.update(ctx, "place_bid", caller, input.LotID, func(c *change) error {
		lot := c.lot
		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}
		if !lot.Market.Listed {
			return domain.LotError(domain.ErrNotListed, lot.ID, domain.InvariantListing, "lot is not listed")
		}
		if caller.ID == lot.CurrentOwner {
			return domain.LotError(domain.ErrNotAuthorized, lot.ID, domain.InvariantBid, "owner cannot bid on own lot")
		}
		if err := lot.CheckAmount(input.Amount); err != nil {
			return err
		}
		if reserve := lot.Market.ReservePrice; reserve != nil && input.Price.LessThan(*reserve) {
			return domain.LotError(domain.ErrValidation, lot.ID, domain.InvariantBid,
				"price %s is below the reserve price", input.Price)
		}

		placed = domain.Bid{
			ID:        bidID,
			Bidder:    caller.ID,
			Amount:    input.Amount,
			Price:     input.Price,
			Status:    domain.BidStatusActive,
			Timestamp: c.now,
			UpdatedAt: c.now,
		}
		lot.Market.Bids = append(lot.Market.Bids, placed)

		c.action = domain.AuditActionBidPlace
		c.emit(domain.EventTypeBidPlaced, map[string]any{
			"bid_id": bidID,
			"bidder": caller.ID,
			"owner":  lot.CurrentOwner,
			"amount": input.Amount.String(),
			"price":  input.Price.String(),
			"total":  placed.Total().String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.BidsPlaced.Inc()
	}
	return &placed, nil
}

// AcceptBid sells bid.Amount at bid.Price to the bidder. When the lot no longer
// holds enough, domain.ErrInsufficientAmount is returned and the bid stays active.
func (uc *MarketplaceUseCase) AcceptBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*TransferResult, error) {
	snapshot, err := uc.w.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	idx, ok := snapshot.FindBid(bidID)
	if !ok {
		return nil, domain.BidError(domain.ErrBidNotFound, lotID, bidID, domain.InvariantBid, "no such bid")
	}
	bid := snapshot.Market.Bids[idx]
	price := bid.Price

	result, err := uc.transfers.execute(ctx, transferPlan{
		op:     "accept_bid",
		caller: caller,
		input: TransferInput{
			LotID:  lotID,
			To:     bid.Bidder,
			Amount: bid.Amount,
			Price:  &price,
			Type:   domain.TransferTypeSale,
		},
		transactionID: uc.w.idGen.Generate(),
		bidID:         bidID,
		precheck: func(lot *domain.CreditLot) error {
			if !lot.Market.Listed {
				return domain.LotError(domain.ErrNotListed, lot.ID, domain.InvariantListing, "lot is not listed")
			}
			i, ok := lot.FindBid(bidID)
			if !ok {
				return domain.BidError(domain.ErrBidNotFound, lot.ID, bidID, domain.InvariantBid, "no such bid")
			}
			current := lot.Market.Bids[i]
			if !current.IsActive() {
				return domain.BidError(domain.ErrStateConflict, lot.ID, bidID, domain.InvariantBid, "bid is %s", current.Status)
			}
			if current.Bidder == lot.CurrentOwner {
				return domain.BidError(domain.ErrStateConflict, lot.ID, bidID, domain.InvariantBid, "bidder already owns the lot")
			}
			if reserve := lot.Market.ReservePrice; reserve != nil && current.Price.LessThan(*reserve) {
				return domain.BidError(domain.ErrValidation, lot.ID, bidID, domain.InvariantBid,
					"price %s is below the reserve price", current.Price)
			}
			return nil
		},
		finish: func(c *change, rec domain.TransferRecord) error {
			i, _ := c.lot.FindBid(bidID)
			accepted := &c.lot.Market.Bids[i]
			accepted.Status = domain.BidStatusAccepted
			accepted.TransactionID = rec.TransactionID
			accepted.UpdatedAt = c.now

			c.action = domain.AuditActionBidAccept
			payload := domain.TransferPayload(rec)
			payload["bid_id"] = bidID
			payload["bidder"] = accepted.Bidder
			c.emit(domain.EventTypeBidAccepted, payload)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.BidsResolved.WithLabelValues(string(domain.BidStatusAccepted)).Inc()
		uc.w.metrics.SalePrice.Observe(price.InexactFloat64())
	}
	uc.w.invalidateMarketStats(ctx)
	return result, nil
}

// RejectBid lets the owner turn down an active bid.
func (uc *MarketplaceUseCase) RejectBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error) {
	return uc.closeBid(ctx, "reject_bid", caller, lotID, bidID, domain.BidStatusRejected, func(lot *domain.CreditLot, bid domain.Bid) error {
		return checkOwner(lot, caller)
	})
}

// WithdrawBid lets the bidder take back an active bid.
func (uc *MarketplaceUseCase) WithdrawBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error) {
	return uc.closeBid(ctx, "withdraw_bid", caller, lotID, bidID, domain.BidStatusWithdrawn, func(lot *domain.CreditLot, bid domain.Bid) error {
		if bid.Bidder == caller.ID || caller.Role.IsAdmin() {
			return nil
		}
		return domain.BidError(domain.ErrNotAuthorized, lot.ID, bid.ID, domain.InvariantBid, "only the bidder can withdraw")
	})
}

func (uc *MarketplaceUseCase) closeBid(
	ctx context.Context,
	op string,
	caller domain.Caller,
	lotID, bidID string,
	status domain.BidStatus,
	authorize func(lot *domain.CreditLot, bid domain.Bid) error,
) (*domain.Bid, error) {
	var closed domain.Bid

	_, err := uc.w.update(ctx, op, caller, lotID, func(c *change) error {
		lot := c.lot
		if lot.Retirement.IsRetired {
			return domain.LotError(domain.ErrAlreadyRetired, lot.ID, domain.InvariantRetirementFinal, "lot is retired")
		}
		i, ok := lot.FindBid(bidID)
		if !ok {
			return domain.BidError(domain.ErrBidNotFound, lot.ID, bidID, domain.InvariantBid, "no such bid")
		}
		bid := &lot.Market.Bids[i]
		if err := authorize(lot, *bid); err != nil {
			return err
		}
		if !bid.IsActive() {
			return domain.BidError(domain.ErrStateConflict, lot.ID, bidID, domain.InvariantBid, "bid is %s", bid.Status)
		}

		bid.Status = status
		bid.UpdatedAt = c.now
		closed = *bid

		eventType, action := domain.EventTypeBidRejected, domain.AuditActionBidReject
		if status == domain.BidStatusWithdrawn {
			eventType, action = domain.EventTypeBidWithdrawn, domain.AuditActionBidWithdraw
		}
		c.action = action
		c.emit(eventType, map[string]any{
			"bid_id": bidID,
			"bidder": bid.Bidder,
			"owner":  lot.CurrentOwner,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.BidsResolved.WithLabelValues(string(status)).Inc()
	}
	return &closed, nil
}
