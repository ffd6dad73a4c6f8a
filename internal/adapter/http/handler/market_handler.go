package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/adapter/http/dto"
	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// MarketService is the part of the ledger the marketplace endpoints use.
type MarketService interface {
	ListForSale(ctx context.Context, caller domain.Caller, input usecase.ListInput) (*domain.CreditLot, error)
	Delist(ctx context.Context, caller domain.Caller, lotID string) (*domain.CreditLot, error)
	PlaceBid(ctx context.Context, caller domain.Caller, input usecase.BidInput) (*domain.Bid, error)
	AcceptBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*usecase.TransferResult, error)
	RejectBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error)
	WithdrawBid(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error)
	ListMarketplace(ctx context.Context, filter usecase.MarketFilter) ([]*domain.CreditLot, error)
	GetMarketStats(ctx context.Context) (*domain.MarketStats, error)
}

// MarketHandler handles listings and bids.
type MarketHandler struct {
	market MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(market MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

// List puts a lot on the marketplace.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.ListRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lot, err := h.market.ListForSale(r.Context(), caller, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to list lot", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotFromDomain(lot))
}

// Delist takes a lot off the marketplace.
func (h *MarketHandler) Delist(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	lot, err := h.market.Delist(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to delist lot", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotFromDomain(lot))
}

// PlaceBid records an offer on a listed lot.
func (h *MarketHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.BidRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	bid, err := h.market.PlaceBid(r.Context(), caller, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to place bid", err)
		return
	}

	writeJSON(w, http.StatusCreated, bid)
}

// AcceptBid sells the bid amount to the bidder.
func (h *MarketHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	result, err := h.market.AcceptBid(r.Context(), caller, chi.URLParam(r, "id"), chi.URLParam(r, "bidID"))
	if err != nil {
		writeDomainError(w, "failed to accept bid", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromUseCase(result))
}

// RejectBid declines a bid.
func (h *MarketHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	h.closeBid(w, r, "failed to reject bid", h.market.RejectBid)
}

// WithdrawBid cancels the caller's own bid.
func (h *MarketHandler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	h.closeBid(w, r, "failed to withdraw bid", h.market.WithdrawBid)
}

func (h *MarketHandler) closeBid(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	op func(ctx context.Context, caller domain.Caller, lotID, bidID string) (*domain.Bid, error),
) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	bid, err := op(r.Context(), caller, chi.URLParam(r, "id"), chi.URLParam(r, "bidID"))
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	writeJSON(w, http.StatusOK, bid)
}

// Listings returns active listings, cheapest first.
func (h *MarketHandler) Listings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMarketFilter(r)
	if err != nil {
		writeDomainError(w, "invalid filter", err)
		return
	}

	lots, err := h.market.ListMarketplace(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "failed to list marketplace", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotsFromDomain(lots))
}

// Stats returns aggregate figures over active listings.
func (h *MarketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.market.GetMarketStats(r.Context())
	if err != nil {
		writeDomainError(w, "failed to get market stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func parseMarketFilter(r *http.Request) (usecase.MarketFilter, error) {
	q := r.URL.Query()
	var filter usecase.MarketFilter
	var err error
	if filter.VintageYear, err = parseIntQuery(r, "vintage_year", 0); err != nil {
		return filter, err
	}
	if filter.Limit, filter.Offset, err = parsePage(r, 0); err != nil {
		return filter, err
	}

	if v := q.Get("methodology"); v != "" {
		m, err := domain.ParseMethodology(v)
		if err != nil {
			return filter, err
		}
		filter.Methodology = m
	}
	if v := q.Get("standard"); v != "" {
		s, err := domain.ParseStandard(v)
		if err != nil {
			return filter, err
		}
		filter.Standard = s
	}
	if v := q.Get("max_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return filter, &domain.LedgerError{Kind: domain.ErrValidation, Invariant: domain.InvariantInput, Detail: "max_price is not a number"}
		}
		filter.MaxAskingPrice = &price
	}

	return filter, nil
}
