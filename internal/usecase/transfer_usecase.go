package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// TransferInput describes a change of ownership for part or all of a lot.
type TransferInput struct {
	LotID  string
	To     string
	Amount decimal.Decimal
	Price  *decimal.Decimal
	Type   domain.TransferType
}

// TransferResult is the outcome of a transfer. Child is nil for an in-place transfer.
type TransferResult struct {
	Record domain.TransferRecord
	Lot    *domain.CreditLot
	Child  *domain.CreditLot
}

// SettlementResult summarizes a pending-children sweep.
type SettlementResult struct {
	Confirmed []string
	Voided    []string
	Failed    map[string]string
}

// transferPlan lets callers such as the marketplace hook into a transfer.
type transferPlan struct {
	op            string
	caller        domain.Caller
	input         TransferInput
	transactionID string
	bidID         string
	// formerOwnerHasNothing reports a former owner as having no balance left
	// instead of plain NotAuthorized.
	formerOwnerHasNothing bool
	// precheck runs after the lot-wide checks and before the amount check.
	precheck func(lot *domain.CreditLot) error
	// finish runs on the parent after the record has been appended.
	finish func(c *change, rec domain.TransferRecord) error
}

// TransferUseCase moves credits between owners, splitting lots on partial transfers.
type TransferUseCase struct {
	w *lotWriter
}

// NewTransferUseCase creates a new TransferUseCase.
func NewTransferUseCase(deps Dependencies, opts Options) *TransferUseCase {
	return newTransferUseCase(newLotWriter(deps, opts))
}

func newTransferUseCase(w *lotWriter) *TransferUseCase {
	return &TransferUseCase{w: w}
}

// Transfer moves input.Amount from the lot to input.To. Moving the whole
// available amount changes the owner in place; anything less creates a child lot.
func (uc *TransferUseCase) Transfer(ctx context.Context, caller domain.Caller, input TransferInput) (*TransferResult, error) {
	if input.Type == "" {
		input.Type = domain.TransferTypeTransfer
	}
	if err := validateTransfer(input); err != nil {
		return nil, validationError(input.LotID, err)
	}

	return uc.execute(ctx, transferPlan{
		op:                    "transfer",
		caller:                caller,
		input:                 input,
		transactionID:         uc.w.idGen.Generate(),
		formerOwnerHasNothing: true,
	})
}

func (uc *TransferUseCase) execute(ctx context.Context, plan transferPlan) (*TransferResult, error) {
	var (
		child *domain.CreditLot
		rec   domain.TransferRecord
		mode  string
	)

	c, err := uc.w.update(ctx, plan.op, plan.caller, plan.input.LotID, func(c *change) error {
		mode = ""
		lot := c.lot
		if existing, ok := lot.FindTransaction(plan.transactionID); ok {
			rec = existing
			return errNoChange
		}

		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}
		if err := uc.authorize(lot, plan); err != nil {
			return err
		}
		if plan.precheck != nil {
			if err := plan.precheck(lot); err != nil {
				return err
			}
		}
		rec = domain.TransferRecord{
			TransactionID: plan.transactionID,
			From:          lot.CurrentOwner,
			To:            plan.input.To,
			Amount:        plan.input.Amount,
			Price:         plan.input.Price,
			Type:          plan.input.Type,
			BidID:         plan.bidID,
			Timestamp:     c.now,
		}
		if err := rec.Validate(); err != nil {
			if le, ok := domain.AsLedgerError(err); ok {
				le.LotID = lot.ID
			}
			return err
		}
		if err := lot.CheckAmount(plan.input.Amount); err != nil {
			return err
		}

		wasListed := lot.Market.Listed

		if child == nil && plan.input.Amount.Equal(lot.AvailableAmount()) {
			mode = "in_place"
			if err := lot.AppendTransfer(rec); err != nil {
				return err
			}
			lot.CurrentOwner = plan.input.To
			lot.ClearListing()
			// bids were made to the previous owner
			lot.ExpireActiveBids(c.now)
		} else {
			mode = "split"
			if child == nil {
				created, err := uc.createChild(ctx, plan.caller, lot, rec, c.now)
				if err != nil {
					return err
				}
				child = created
			}
			rec.ChildLotID = child.ID
			if err := lot.AppendTransfer(rec); err != nil {
				return err
			}
			if lot.AvailableAmount().IsZero() {
				lot.ClearListing()
			}
		}

		c.transactionID = rec.TransactionID
		c.action = domain.AuditActionLotTransfer
		c.anchorKind = domain.EventTypeCreditTransferred
		c.emit(domain.EventTypeCreditTransferred, domain.TransferPayload(rec))
		if wasListed && !lot.Market.Listed {
			c.emit(domain.EventTypeLotDelisted, map[string]any{"reason": "sold_out"})
		}

		if plan.finish != nil {
			return plan.finish(c, rec)
		}
		return nil
	})

	if err != nil {
		if child != nil {
			if _, serr := uc.settleChild(ctx, child.ID); serr != nil {
				uc.w.logger.Error().Err(serr).Str("lot_id", child.ID).Msg("failed to settle child lot after failed transfer")
			}
		}
		return nil, err
	}

	result := &TransferResult{Record: rec, Lot: c.lot}
	if child != nil {
		settled, serr := uc.settleChild(ctx, child.ID)
		if serr != nil {
			// left pending; SettlePending confirms it later
			uc.w.logger.Warn().Err(serr).Str("lot_id", child.ID).Msg("failed to confirm child lot")
			result.Child = child
		} else {
			result.Child = settled
		}
	}

	if mode != "" && uc.w.metrics != nil {
		uc.w.metrics.Transfers.WithLabelValues(string(rec.Type), mode).Inc()
		uc.w.metrics.TransferAmount.Observe(rec.Amount.InexactFloat64())
	}
	if c.before.Market.Listed {
		uc.w.invalidateMarketStats(ctx)
	}

	return result, nil
}

func (uc *TransferUseCase) authorize(lot *domain.CreditLot, plan transferPlan) error {
	if plan.caller.ID == lot.CurrentOwner || plan.caller.Role.IsAdmin() {
		return nil
	}
	if plan.formerOwnerHasNothing && lot.IsFormerOwner(plan.caller.ID) {
		return domain.LotError(domain.ErrInsufficientAmount, lot.ID, domain.InvariantAvailableAmount,
			"%s has no remaining amount on this lot", plan.caller.ID).WithCause(domain.ErrNotAuthorized)
	}
	return checkOwner(lot, plan.caller)
}

// createChild writes the child lot before the parent records the split.
// Its id is derived from the split itself, so finding it already stored with
// the same lineage counts as success.
func (uc *TransferUseCase) createChild(ctx context.Context, caller domain.Caller, parent *domain.CreditLot, rec domain.TransferRecord, now time.Time) (*domain.CreditLot, error) {
	child := domain.NewChildLot(parent, rec.Amount, rec.To, rec.TransactionID, now)

	err := uc.w.create(ctx, caller, &change{lot: child, now: now})
	if errors.Is(err, domain.ErrLotExists) {
		existing, gerr := uc.w.lots.GetByID(ctx, child.ID)
		if gerr != nil {
			return nil, gerr
		}
		if existing.ParentLotID != parent.ID || existing.OriginTransactionID != rec.TransactionID {
			return nil, domain.LotError(domain.ErrStateConflict, child.ID, domain.InvariantConservation,
				"lot id already used by another lineage")
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create child lot: %w", err)
	}

	if uc.w.metrics != nil {
		uc.w.metrics.LotsSplit.Inc()
	}
	return child, nil
}

// settleChild confirms a pending child whose split record is on the parent and
// voids it otherwise.
func (uc *TransferUseCase) settleChild(ctx context.Context, childID string) (*domain.CreditLot, error) {
	outcome := ""
	c, err := uc.w.update(ctx, "settle", domain.SystemCaller, childID, func(c *change) error {
		outcome = ""
		child := c.lot
		if child.Settlement != domain.SettlementPending {
			return errNoChange
		}

		parent, err := uc.w.lots.GetByID(ctx, child.ParentLotID)
		if err != nil {
			return err
		}

		if rec, ok := parent.FindTransaction(child.OriginTransactionID); ok && rec.ChildLotID == child.ID {
			child.Settlement = domain.SettlementSettled
			outcome = "confirmed"
		} else {
			child.Settlement = domain.SettlementVoided
			outcome = "voided"
		}
		c.action = domain.AuditActionLotSettle
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome != "" && uc.w.metrics != nil {
		uc.w.metrics.ChildLotsSettled.WithLabelValues(outcome).Inc()
	}
	return c.lot, nil
}

// SettlePending resolves split children left pending by an interrupted transfer.
// Children younger than the grace period are skipped.
func (uc *TransferUseCase) SettlePending(ctx context.Context) (*SettlementResult, error) {
	pending, err := uc.w.lots.Query(ctx, domain.LotFilter{Settlement: domain.SettlementPending})
	if err != nil {
		return nil, fmt.Errorf("query pending lots: %w", err)
	}

	cutoff := uc.w.clock().UTC().Add(-uc.w.opts.SettleGracePeriod)
	result := &SettlementResult{Failed: map[string]string{}}
	for _, lot := range pending {
		if lot.CreatedAt.After(cutoff) {
			continue
		}

		settled, err := uc.settleChild(ctx, lot.ID)
		if err != nil {
			result.Failed[lot.ID] = err.Error()
			continue
		}

		switch settled.Settlement {
		case domain.SettlementSettled:
			result.Confirmed = append(result.Confirmed, lot.ID)
		case domain.SettlementVoided:
			result.Voided = append(result.Voided, lot.ID)
		}
	}

	return result, nil
}

func validateTransfer(input TransferInput) error {
	if err := domain.ValidateParticipantID("recipient", input.To); err != nil {
		return err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return err
	}
	if !input.Type.IsValid() || input.Type == domain.TransferTypeRetirement {
		return fmt.Errorf("%w: unsupported transfer type %q", domain.ErrValidation, input.Type)
	}
	if input.Price != nil {
		if input.Type == domain.TransferTypeDonation {
			return fmt.Errorf("%w: donations carry no price", domain.ErrValidation)
		}
		if err := domain.ValidatePrice("price", *input.Price); err != nil {
			return err
		}
	}
	return nil
}
