package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// IssueInput describes a new lot.
type IssueInput struct {
	Owner       string
	Amount      decimal.Decimal
	VintageYear int
	Methodology domain.Methodology
	Standard    domain.Standard
	ProjectID   string
	ValidFrom   time.Time
	ValidUntil  time.Time
}

// IssuanceUseCase creates new credit lots.
type IssuanceUseCase struct {
	w *lotWriter
}

// NewIssuanceUseCase creates a new IssuanceUseCase.
func NewIssuanceUseCase(deps Dependencies, opts Options) *IssuanceUseCase {
	return newIssuanceUseCase(newLotWriter(deps, opts))
}

func newIssuanceUseCase(w *lotWriter) *IssuanceUseCase {
	return &IssuanceUseCase{w: w}
}

// Issue validates input and stores a pending lot owned by input.Owner.
func (uc *IssuanceUseCase) Issue(ctx context.Context, caller domain.Caller, input IssueInput) (*domain.CreditLot, error) {
	start := time.Now()
	now := uc.w.clock().UTC()

	if !caller.Role.CanIssue() {
		return nil, &domain.LedgerError{Kind: domain.ErrNotAuthorized, Invariant: domain.InvariantInput,
			Detail: fmt.Sprintf("role %q cannot issue credits", caller.Role)}
	}

	if err := validateIssue(input, now); err != nil {
		return nil, validationError("", err)
	}

	seq, err := uc.w.lots.NextSequence(ctx, input.VintageYear)
	if err != nil {
		return nil, err
	}

	validFrom := input.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}

	lot := &domain.CreditLot{
		ID:                  fmt.Sprintf("%s-%d-%06d", uc.w.opts.LotIDPrefix, input.VintageYear, seq),
		ProjectID:           input.ProjectID,
		Settlement:          domain.SettlementSettled,
		TotalIssuedAmount:   input.Amount,
		CurrentOwner:        input.Owner,
		OriginalOwner:       input.Owner,
		VintageYear:         input.VintageYear,
		Methodology:         input.Methodology,
		Standard:            input.Standard,
		ValidFrom:           validFrom.UTC(),
		ValidUntil:          input.ValidUntil.UTC(),
		VerificationStatus:  domain.VerificationPending,
		VerificationHistory: []domain.VerificationEntry{},
		Market:              domain.Market{Bids: []domain.Bid{}},
		TransferHistory:     []domain.TransferRecord{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	c := &change{lot: lot, now: now, action: domain.AuditActionLotIssue}
	c.emit(domain.EventTypeCreditIssued, map[string]any{
		"owner":        lot.CurrentOwner,
		"amount":       lot.TotalIssuedAmount.String(),
		"vintage_year": lot.VintageYear,
		"methodology":  string(lot.Methodology),
		"standard":     string(lot.Standard),
	})

	if err := uc.w.create(ctx, caller, c); err != nil {
		uc.w.observeError("issue", err)
		return nil, err
	}

	uc.w.observe("issue", start)
	if uc.w.metrics != nil {
		uc.w.metrics.LotsIssued.Inc()
		uc.w.metrics.IssuedAmount.Observe(lot.TotalIssuedAmount.InexactFloat64())
	}
	uc.w.anchorAsync(ctx, lot.ID, "", domain.EventTypeCreditIssued)

	return lot, nil
}

func validateIssue(input IssueInput, now time.Time) error {
	if err := domain.ValidateParticipantID("owner", input.Owner); err != nil {
		return err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return err
	}
	if err := domain.ValidateVintage(input.VintageYear, now); err != nil {
		return err
	}
	if !input.Methodology.IsValid() {
		return fmt.Errorf("%w: unknown methodology %q", domain.ErrValidation, input.Methodology)
	}
	if !input.Standard.IsValid() {
		return fmt.Errorf("%w: unknown standard %q", domain.ErrValidation, input.Standard)
	}
	if err := domain.ValidateValidityWindow(input.ValidFrom, input.ValidUntil); err != nil {
		return err
	}
	if !input.ValidUntil.After(now) {
		return fmt.Errorf("%w: valid_until must be in the future", domain.ErrValidation)
	}
	return nil
}
