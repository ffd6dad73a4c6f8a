package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// LotResponse represents a credit lot in API responses. Available and
// retired amounts are derived from the transfer history.
type LotResponse struct {
	ID                  string                     `json:"id"`
	ProjectID           string                     `json:"project_id,omitempty"`
	ParentLotID         string                     `json:"parent_lot_id,omitempty"`
	Settlement          domain.SettlementState     `json:"settlement"`
	TotalIssuedAmount   decimal.Decimal            `json:"total_issued_amount"`
	AvailableAmount     decimal.Decimal            `json:"available_amount"`
	RetiredAmount       decimal.Decimal            `json:"retired_amount"`
	CurrentOwner        string                     `json:"current_owner"`
	OriginalOwner       string                     `json:"original_owner"`
	VintageYear         int                        `json:"vintage_year"`
	Methodology         domain.Methodology         `json:"methodology"`
	Standard            domain.Standard            `json:"standard"`
	ValidFrom           time.Time                  `json:"valid_from"`
	ValidUntil          time.Time                  `json:"valid_until"`
	VerificationStatus  domain.VerificationStatus  `json:"verification_status"`
	VerificationHistory []domain.VerificationEntry `json:"verification_history"`
	NextVerificationDue *time.Time                 `json:"next_verification_due,omitempty"`
	Retirement          domain.Retirement          `json:"retirement"`
	Market              domain.Market              `json:"market"`
	TransferHistory     []domain.TransferRecord    `json:"transfer_history"`
	Version             int64                      `json:"version"`
	CreatedAt           time.Time                  `json:"created_at"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

// LotFromDomain converts a domain lot to response.
func LotFromDomain(l *domain.CreditLot) *LotResponse {
	if l == nil {
		return nil
	}
	return &LotResponse{
		ID:                  l.ID,
		ProjectID:           l.ProjectID,
		ParentLotID:         l.ParentLotID,
		Settlement:          l.Settlement,
		TotalIssuedAmount:   l.TotalIssuedAmount,
		AvailableAmount:     l.AvailableAmount(),
		RetiredAmount:       l.RetiredAmount(),
		CurrentOwner:        l.CurrentOwner,
		OriginalOwner:       l.OriginalOwner,
		VintageYear:         l.VintageYear,
		Methodology:         l.Methodology,
		Standard:            l.Standard,
		ValidFrom:           l.ValidFrom,
		ValidUntil:          l.ValidUntil,
		VerificationStatus:  l.VerificationStatus,
		VerificationHistory: l.VerificationHistory,
		NextVerificationDue: l.NextVerificationDue,
		Retirement:          l.Retirement,
		Market:              l.Market,
		TransferHistory:     l.TransferHistory,
		Version:             l.Version,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
}

// LotsFromDomain converts domain lots to responses.
func LotsFromDomain(lots []*domain.CreditLot) []*LotResponse {
	result := make([]*LotResponse, len(lots))
	for i, l := range lots {
		result[i] = LotFromDomain(l)
	}
	return result
}

// TransferResponse is the outcome of a transfer, sale or accepted bid.
type TransferResponse struct {
	Record domain.TransferRecord `json:"record"`
	Lot    *LotResponse          `json:"lot"`
	Child  *LotResponse          `json:"child,omitempty"`
}

// TransferFromUseCase converts a transfer result to response.
func TransferFromUseCase(r *usecase.TransferResult) *TransferResponse {
	return &TransferResponse{
		Record: r.Record,
		Lot:    LotFromDomain(r.Lot),
		Child:  LotFromDomain(r.Child),
	}
}

// RetireResponse is the outcome of a retirement.
type RetireResponse struct {
	Record domain.TransferRecord `json:"record"`
	Lot    *LotResponse          `json:"lot"`
}

// ConservationResponse reports whether a lot family still adds up.
type ConservationResponse struct {
	RootLotID     string          `json:"root_lot_id"`
	Issued        decimal.Decimal `json:"issued"`
	Available     decimal.Decimal `json:"available"`
	Retired       decimal.Decimal `json:"retired"`
	Lots          int             `json:"lots"`
	Pending       []string        `json:"pending,omitempty"`
	Discrepancies []string        `json:"discrepancies,omitempty"`
	Balanced      bool            `json:"balanced"`
	CheckedAt     time.Time       `json:"checked_at"`
}

// ConservationFromUseCase converts a conservation report to response.
func ConservationFromUseCase(r *usecase.ConservationReport) *ConservationResponse {
	return &ConservationResponse{
		RootLotID:     r.RootLotID,
		Issued:        r.Issued,
		Available:     r.Available,
		Retired:       r.Retired,
		Lots:          r.Lots,
		Pending:       r.Pending,
		Discrepancies: r.Discrepancies,
		Balanced:      r.Balanced,
		CheckedAt:     r.CheckedAt,
	}
}

// SweepResponse summarizes a manually triggered settlement and expiry sweep.
type SweepResponse struct {
	Confirmed []string          `json:"confirmed"`
	Voided    []string          `json:"voided"`
	Scanned   int               `json:"scanned"`
	Expired   []string          `json:"expired"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// SweepFromUseCase merges both sweep results.
func SweepFromUseCase(s *usecase.SettlementResult, e *usecase.ExpiryResult) *SweepResponse {
	resp := &SweepResponse{
		Confirmed: nonNil(s.Confirmed),
		Voided:    nonNil(s.Voided),
		Scanned:   e.Scanned,
		Expired:   nonNil(e.Expired),
	}
	for id, msg := range s.Failed {
		if resp.Failed == nil {
			resp.Failed = map[string]string{}
		}
		resp.Failed[id] = msg
	}
	for id, msg := range e.Failed {
		if resp.Failed == nil {
			resp.Failed = map[string]string{}
		}
		resp.Failed[id] = msg
	}
	return resp
}

// EventResponse is one lot event from the outbox.
type EventResponse struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// EventsFromDomain converts outbox events to responses.
func EventsFromDomain(events []*domain.OutboxEvent) []*EventResponse {
	result := make([]*EventResponse, len(events))
	for i, e := range events {
		result[i] = &EventResponse{
			ID:          e.ID,
			EventType:   e.EventType,
			Payload:     e.Payload,
			CreatedAt:   e.CreatedAt,
			PublishedAt: e.PublishedAt,
		}
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	LotID     string `json:"lot_id,omitempty"`
	BidID     string `json:"bid_id,omitempty"`
	Invariant string `json:"invariant,omitempty"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
