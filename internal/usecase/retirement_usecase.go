package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// RetireInput removes credits from circulation.
type RetireInput struct {
	LotID  string
	Amount decimal.Decimal
	Reason string
}

// RetirementUseCase retires credits. Retiring everything that is available
// is terminal for the lot.
type RetirementUseCase struct {
	w *lotWriter
}

// NewRetirementUseCase creates a new RetirementUseCase.
func NewRetirementUseCase(deps Dependencies, opts Options) *RetirementUseCase {
	return newRetirementUseCase(newLotWriter(deps, opts))
}

func newRetirementUseCase(w *lotWriter) *RetirementUseCase {
	return &RetirementUseCase{w: w}
}

// Retire appends a retirement record for input.Amount. When that is the whole
// available amount the lot is marked retired and delisted.
func (uc *RetirementUseCase) Retire(ctx context.Context, caller domain.Caller, input RetireInput) (*domain.TransferRecord, *domain.CreditLot, error) {
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, nil, validationError(input.LotID, err)
	}
	if err := domain.ValidateText("reason", input.Reason, domain.MaxReasonLength, true); err != nil {
		return nil, nil, validationError(input.LotID, err)
	}

	transactionID := uc.w.idGen.Generate()
	var (
		rec  domain.TransferRecord
		full bool
	)

	c, err := uc.w.update(ctx, "retire", caller, input.LotID, func(c *change) error {
		lot := c.lot
		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}
		if err := checkOwner(lot, caller); err != nil {
			return err
		}
		if lot.VerificationStatus != domain.VerificationVerified {
			return domain.LotError(domain.ErrNotVerified, lot.ID, domain.InvariantVerification,
				"lot is %s", lot.VerificationStatus)
		}
		if err := lot.CheckAmount(input.Amount); err != nil {
			return err
		}

		full = input.Amount.Equal(lot.AvailableAmount())
		rec = domain.TransferRecord{
			TransactionID: transactionID,
			From:          lot.CurrentOwner,
			To:            lot.CurrentOwner,
			Amount:        input.Amount,
			Type:          domain.TransferTypeRetirement,
			Reason:        input.Reason,
			Timestamp:     c.now,
		}
		if err := lot.AppendTransfer(rec); err != nil {
			return err
		}

		wasListed := lot.Market.Listed
		if full {
			date := c.now
			lot.Retirement = domain.Retirement{
				IsRetired: true,
				RetiredBy: lot.CurrentOwner,
				Reason:    input.Reason,
				Date:      &date,
			}
			lot.ClearListing()
			lot.ExpireActiveBids(c.now)
		}

		c.transactionID = transactionID
		c.action = domain.AuditActionLotRetire
		c.anchorKind = domain.EventTypeCreditRetired
		c.emit(domain.EventTypeCreditRetired, map[string]any{
			"transaction_id": transactionID,
			"owner":          lot.CurrentOwner,
			"amount":         input.Amount.String(),
			"reason":         input.Reason,
			"terminal":       full,
		})
		if wasListed && !lot.Market.Listed {
			c.emit(domain.EventTypeLotDelisted, map[string]any{"reason": "retired"})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if uc.w.metrics != nil {
		kind := "partial"
		if full {
			kind = "full"
		}
		uc.w.metrics.Retirements.WithLabelValues(kind).Inc()
		uc.w.metrics.RetiredAmount.Add(input.Amount.InexactFloat64())
	}
	if c.before.Market.Listed {
		uc.w.invalidateMarketStats(ctx)
	}

	return &rec, c.lot, nil
}
