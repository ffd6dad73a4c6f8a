package handler

import (
	"context"
	"net/http"

	"github.com/iho/carbonledger/internal/adapter/http/dto"
	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// SweepService runs the maintenance sweeps.
type SweepService interface {
	ExpireLots(ctx context.Context) (*usecase.ExpiryResult, error)
	SettlePending(ctx context.Context) (*usecase.SettlementResult, error)
}

// AdminHandler exposes maintenance operations to admins.
type AdminHandler struct {
	sweeps SweepService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sweeps SweepService) *AdminHandler {
	return &AdminHandler{sweeps: sweeps}
}

// Sweep settles pending split children and expires lots past their validity.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if !caller.Role.IsAdmin() {
		writeDomainError(w, "sweep not allowed", &domain.LedgerError{Kind: domain.ErrNotAuthorized, Detail: "admin role required"})
		return
	}

	settled, err := h.sweeps.SettlePending(r.Context())
	if err != nil {
		writeDomainError(w, "failed to settle pending lots", err)
		return
	}
	expired, err := h.sweeps.ExpireLots(r.Context())
	if err != nil {
		writeDomainError(w, "failed to expire lots", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SweepFromUseCase(settled, expired))
}
