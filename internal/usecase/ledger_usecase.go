package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
)

// LedgerService is the single entry point the transports use. All engines
// share one writer so anchoring goroutines can be awaited together.
type LedgerService struct {
	w *lotWriter

	Issuance       *IssuanceUseCase
	Verification   *VerificationUseCase
	Transfers      *TransferUseCase
	Marketplace    *MarketplaceUseCase
	Retirement     *RetirementUseCase
	Queries        *QueryUseCase
	Reconciliation *ReconciliationUseCase
}

// NewLedgerService wires every engine on top of the same dependencies.
func NewLedgerService(deps Dependencies, opts Options) *LedgerService {
	w := newLotWriter(deps, opts)
	transfers := newTransferUseCase(w)
	return &LedgerService{
		w:              w,
		Issuance:       newIssuanceUseCase(w),
		Verification:   newVerificationUseCase(w),
		Transfers:      transfers,
		Marketplace:    newMarketplaceUseCase(w, transfers),
		Retirement:     newRetirementUseCase(w),
		Queries:        newQueryUseCase(w),
		Reconciliation: newReconciliationUseCase(w),
	}
}

// Wait blocks until in-flight anchoring calls have finished.
func (s *LedgerService) Wait() {
	s.w.anchors.Wait()
}

// Issue creates a pending lot owned by input.Owner.
func (s *LedgerService) Issue(ctx context.Context, caller domain.Caller, input IssueInput) (*domain.CreditLot, error) {
	return s.Issuance.Issue(ctx, caller, input)
}

// Verify marks a pending lot verified and sets its verification expiry.
func (s *LedgerService) Verify(ctx context.Context, caller domain.Caller, input VerifyInput) (*domain.CreditLot, error) {
	return s.Verification.Verify(ctx, caller, input)
}

// Reject marks a pending lot rejected with reason.
func (s *LedgerService) Reject(ctx context.Context, caller domain.Caller, lotID, reason string) (*domain.CreditLot, error) {
	return s.Verification.Reject(ctx, caller, lotID, reason)
}

// Transfer moves credits to another participant. See TransferUseCase.Transfer.
func (s *LedgerService) Transfer(ctx context.Context, caller domain.Caller, input TransferInput) (*TransferResult, error) {
	return s.Transfers.Transfer(ctx, caller, input)
}

// ListForSale puts a verified lot on the marketplace.
func (s *LedgerService) ListForSale(ctx context.Context, caller domain.Caller, input ListInput) (*domain.CreditLot, error) {
	return s.Marketplace.ListForSale(ctx, caller, input)
}

// Delist takes a lot off the marketplace. Active bids are kept.
func (s *LedgerService) Delist(ctx context.Context, caller domain.Caller, lotID string) (*domain.CreditLot, error) {
	return s.Marketplace.Delist(ctx, caller, lotID)
}

// PlaceBid records an offer from caller against a listed lot.
func (s *LedgerService) PlaceBid(ctx context.Context, caller domain.Caller, input BidInput) (*domain.Bid, error) {
	return s.Marketplace.PlaceBid(ctx, caller, input)
}

// AcceptBid sells the bid amount to the bidder at the bid price.
func (s *LedgerService) AcceptBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*TransferResult, error) {
	return s.Marketplace.AcceptBid(ctx, caller, lotID, bidID)
}

// RejectBid closes an active bid on behalf of the lot owner.
func (s *LedgerService) RejectBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error) {
	return s.Marketplace.RejectBid(ctx, caller, lotID, bidID)
}

// WithdrawBid closes an active bid on behalf of its bidder.
func (s *LedgerService) WithdrawBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error) {
	return s.Marketplace.WithdrawBid(ctx, caller, lotID, bidID)
}

// Retire permanently removes amount from circulation.
func (s *LedgerService) Retire(ctx context.Context, caller domain.Caller, lotID string, amount decimal.Decimal, reason string) (*domain.TransferRecord, *domain.CreditLot, error) {
	return s.Retirement.Retire(ctx, caller, RetireInput{LotID: lotID, Amount: amount, Reason: reason})
}

// GetLot returns a lot by id.
func (s *LedgerService) GetLot(ctx context.Context, lotID string) (*domain.CreditLot, error) {
	return s.Queries.GetLot(ctx, lotID)
}

// ListByOwner pages through the lots ownerID currently holds.
func (s *LedgerService) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CreditLot, error) {
	return s.Queries.ListByOwner(ctx, ownerID, limit, offset)
}

// ListMarketplace returns listed lots matching filter, cheapest first.
func (s *LedgerService) ListMarketplace(ctx context.Context, filter MarketFilter) ([]*domain.CreditLot, error) {
	return s.Queries.ListMarketplace(ctx, filter)
}

// GetMarketStats summarizes the listed supply.
func (s *LedgerService) GetMarketStats(ctx context.Context) (*domain.MarketStats, error) {
	return s.Queries.GetMarketStats(ctx)
}

// GetExpiring returns verified lots whose validity ends within daysAhead days.
func (s *LedgerService) GetExpiring(ctx context.Context, daysAhead int) ([]*domain.CreditLot, error) {
	return s.Queries.GetExpiring(ctx, daysAhead)
}

// ExpireLots moves every lot past its validity to expired.
func (s *LedgerService) ExpireLots(ctx context.Context) (*ExpiryResult, error) {
	return s.Verification.ExpireLots(ctx)
}

// SettlePending resolves split children left pending by an interrupted transfer.
func (s *LedgerService) SettlePending(ctx context.Context) (*SettlementResult, error) {
	return s.Transfers.SettlePending(ctx)
}

// CheckConservation verifies that amounts balance across a lot's lineage.
func (s *LedgerService) CheckConservation(ctx context.Context, lotID string) (*ConservationReport, error) {
	return s.Reconciliation.CheckConservation(ctx, lotID)
}
