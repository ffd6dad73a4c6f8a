package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// ConservationReport is the outcome of checking one lot family. Issued must
// equal Available plus Retired summed over every lot the family split into.
type ConservationReport struct {
	RootLotID     string
	Issued        decimal.Decimal
	Available     decimal.Decimal
	Retired       decimal.Decimal
	Lots          int
	Pending       []string
	Discrepancies []string
	Balanced      bool
	CheckedAt     time.Time
}

// ReconciliationUseCase checks amount conservation across split lots.
type ReconciliationUseCase struct {
	w *lotWriter
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(deps Dependencies, opts Options) *ReconciliationUseCase {
	return newReconciliationUseCase(newLotWriter(deps, opts))
}

func newReconciliationUseCase(w *lotWriter) *ReconciliationUseCase {
	return &ReconciliationUseCase{w: w}
}

// CheckConservation walks up from lotID to the issued lot and then down
// through every split record, reading from the primary store.
func (uc *ReconciliationUseCase) CheckConservation(ctx context.Context, lotID string) (*ConservationReport, error) {
	root, err := uc.root(ctx, lotID)
	if err != nil {
		return nil, err
	}

	report := &ConservationReport{
		RootLotID: root.ID,
		Issued:    root.TotalIssuedAmount,
		Available: decimal.Zero,
		Retired:   decimal.Zero,
		CheckedAt: uc.w.clock().UTC(),
	}

	queue := []*domain.CreditLot{root}
	seen := map[string]bool{root.ID: true}
	for len(queue) > 0 {
		lot := queue[0]
		queue = queue[1:]

		report.Lots++
		report.Available = report.Available.Add(lot.AvailableAmount())
		report.Retired = report.Retired.Add(lot.RetiredAmount())
		if lot.AvailableAmount().IsNegative() {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("%s: available amount is negative (%s)", lot.ID, lot.AvailableAmount()))
		}

		for _, rec := range lot.TransferHistory {
			if rec.ChildLotID == "" {
				continue
			}
			if seen[rec.ChildLotID] {
				report.Discrepancies = append(report.Discrepancies,
					fmt.Sprintf("%s: child %s referenced twice", lot.ID, rec.ChildLotID))
				continue
			}
			seen[rec.ChildLotID] = true

			child, err := uc.w.lots.GetByID(ctx, rec.ChildLotID)
			if errors.Is(err, domain.ErrLotNotFound) {
				report.Discrepancies = append(report.Discrepancies,
					fmt.Sprintf("%s: child %s from transaction %s is missing", lot.ID, rec.ChildLotID, rec.TransactionID))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load child lot %s: %w", rec.ChildLotID, err)
			}

			switch {
			case child.Settlement == domain.SettlementVoided:
				report.Discrepancies = append(report.Discrepancies,
					fmt.Sprintf("%s: child %s is voided but recorded on the parent", lot.ID, child.ID))
				continue
			case child.Settlement == domain.SettlementPending:
				report.Pending = append(report.Pending, child.ID)
			}
			if !child.TotalIssuedAmount.Equal(rec.Amount) {
				report.Discrepancies = append(report.Discrepancies,
					fmt.Sprintf("%s: child %s holds %s, split record says %s", lot.ID, child.ID, child.TotalIssuedAmount, rec.Amount))
			}
			queue = append(queue, child)
		}
	}

	total := report.Available.Add(report.Retired)
	if !total.Equal(report.Issued) {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("issued %s but available %s + retired %s = %s", report.Issued, report.Available, report.Retired, total))
	}
	report.Balanced = len(report.Discrepancies) == 0

	if !report.Balanced {
		uc.w.logger.Error().
			Str("lot_id", root.ID).
			Strs("discrepancies", report.Discrepancies).
			Msg("conservation check failed")
	}

	return report, nil
}

func (uc *ReconciliationUseCase) root(ctx context.Context, lotID string) (*domain.CreditLot, error) {
	lot, err := uc.w.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	for depth := 0; lot.ParentLotID != ""; depth++ {
		if depth > 1000 {
			return nil, domain.LotError(domain.ErrStateConflict, lotID, domain.InvariantConservation, "lineage too deep")
		}
		lot, err = uc.w.lots.GetByID(ctx, lot.ParentLotID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent lot: %w", err)
		}
	}
	return lot, nil
}
