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

const defaultEventsLimit = 100

// LotService is the part of the ledger the lot endpoints use.
type LotService interface {
	Issue(ctx context.Context, caller domain.Caller, input usecase.IssueInput) (*domain.CreditLot, error)
	Verify(ctx context.Context, caller domain.Caller, input usecase.VerifyInput) (*domain.CreditLot, error)
	Reject(ctx context.Context, caller domain.Caller, lotID, reason string) (*domain.CreditLot, error)
	Transfer(ctx context.Context, caller domain.Caller, input usecase.TransferInput) (*usecase.TransferResult, error)
	Retire(ctx context.Context, caller domain.Caller, lotID string, amount decimal.Decimal, reason string) (*domain.TransferRecord, *domain.CreditLot, error)
	GetLot(ctx context.Context, lotID string) (*domain.CreditLot, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CreditLot, error)
	GetExpiring(ctx context.Context, daysAhead int) ([]*domain.CreditLot, error)
	CheckConservation(ctx context.Context, lotID string) (*usecase.ConservationReport, error)
}

// EventLister reads the events recorded for a lot.
type EventLister interface {
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
}

// LotHandler handles lot lifecycle requests.
type LotHandler struct {
	lots   LotService
	events EventLister
}

// NewLotHandler creates a new LotHandler. events may be nil.
func NewLotHandler(lots LotService, events EventLister) *LotHandler {
	return &LotHandler{lots: lots, events: events}
}

// Issue creates a new pending lot.
func (h *LotHandler) Issue(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.IssueLotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid lot", err)
		return
	}

	lot, err := h.lots.Issue(r.Context(), caller, input)
	if err != nil {
		writeDomainError(w, "failed to issue lot", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LotFromDomain(lot))
}

// Get returns one lot.
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	lot, err := h.lots.GetLot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get lot", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotFromDomain(lot))
}

// ListByOwner returns the lots held by the owner query parameter.
func (h *LotHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner", "owner query parameter is required")
		return
	}

	limit, offset, err := parsePage(r, 0)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	lots, err := h.lots.ListByOwner(r.Context(), owner, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list lots", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotsFromDomain(lots))
}

// Expiring returns verified lots whose validity ends within days_ahead days.
func (h *LotHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntQuery(r, "days_ahead", 30)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	lots, err := h.lots.GetExpiring(r.Context(), days)
	if err != nil {
		writeDomainError(w, "failed to list expiring lots", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotsFromDomain(lots))
}

// Verify marks a lot verified.
func (h *LotHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.VerifyLotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lot, err := h.lots.Verify(r.Context(), caller, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to verify lot", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotFromDomain(lot))
}

// Reject marks a lot rejected.
func (h *LotHandler) Reject(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lot, err := h.lots.Reject(r.Context(), caller, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, "failed to reject lot", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LotFromDomain(lot))
}

// Transfer moves credits to another participant.
func (h *LotHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.ToUseCaseInput(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "invalid transfer", err)
		return
	}

	result, err := h.lots.Transfer(r.Context(), caller, input)
	if err != nil {
		writeDomainError(w, "failed to transfer credits", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransferFromUseCase(result))
}

// Retire removes credits from circulation.
func (h *LotHandler) Retire(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.RetireRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, lot, err := h.lots.Retire(r.Context(), caller, chi.URLParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		writeDomainError(w, "failed to retire credits", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RetireResponse{Record: *rec, Lot: dto.LotFromDomain(lot)})
}

// Conservation checks that the lot family still adds up to what was issued.
func (h *LotHandler) Conservation(w http.ResponseWriter, r *http.Request) {
	report, err := h.lots.CheckConservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to check conservation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConservationFromUseCase(report))
}

// Events lists the events recorded for a lot, oldest first.
func (h *LotHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "events unavailable", "")
		return
	}

	lotID := chi.URLParam(r, "id")
	if _, err := h.lots.GetLot(r.Context(), lotID); err != nil {
		writeDomainError(w, "failed to get lot", err)
		return
	}

	limit, offset, err := parsePage(r, defaultEventsLimit)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	events, err := h.events.GetByAggregate(r.Context(), domain.AggregateTypeLot, lotID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.EventsFromDomain(events))
}
