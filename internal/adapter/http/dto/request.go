package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

// IssueLotRequest represents a request to issue a new credit lot.
type IssueLotRequest struct {
	Owner       string          `json:"owner"`
	Amount      decimal.Decimal `json:"amount"`
	VintageYear int             `json:"vintage_year"`
	Methodology string          `json:"methodology"`
	Standard    string          `json:"standard"`
	ProjectID   string          `json:"project_id,omitempty"`
	ValidFrom   time.Time       `json:"valid_from"`
	ValidUntil  time.Time       `json:"valid_until"`
}

// ToUseCaseInput converts to use case input.
func (r *IssueLotRequest) ToUseCaseInput() (usecase.IssueInput, error) {
	methodology, err := domain.ParseMethodology(r.Methodology)
	if err != nil {
		return usecase.IssueInput{}, err
	}
	standard, err := domain.ParseStandard(r.Standard)
	if err != nil {
		return usecase.IssueInput{}, err
	}

	return usecase.IssueInput{
		Owner:       r.Owner,
		Amount:      r.Amount,
		VintageYear: r.VintageYear,
		Methodology: methodology,
		Standard:    standard,
		ProjectID:   r.ProjectID,
		ValidFrom:   r.ValidFrom,
		ValidUntil:  r.ValidUntil,
	}, nil
}

// VerifyLotRequest represents a verification decision.
type VerifyLotRequest struct {
	Body     string `json:"verification_body"`
	Report   string `json:"report,omitempty"`
	Reverify bool   `json:"reverify,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *VerifyLotRequest) ToUseCaseInput(lotID string) usecase.VerifyInput {
	return usecase.VerifyInput{
		LotID:    lotID,
		Body:     r.Body,
		Report:   r.Report,
		Reverify: r.Reverify,
	}
}

// ReasonRequest carries a free-text reason, used for rejections.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// TransferRequest represents a request to move credits to another participant.
type TransferRequest struct {
	To     string           `json:"to"`
	Amount decimal.Decimal  `json:"amount"`
	Price  *decimal.Decimal `json:"price,omitempty"`
	Type   string           `json:"type,omitempty"`
}

// ToUseCaseInput converts to use case input. Type defaults to a plain transfer.
func (r *TransferRequest) ToUseCaseInput(lotID string) (usecase.TransferInput, error) {
	transferType := domain.TransferTypeTransfer
	if r.Type != "" {
		parsed, err := domain.ParseTransferType(r.Type)
		if err != nil {
			return usecase.TransferInput{}, err
		}
		transferType = parsed
	}

	return usecase.TransferInput{
		LotID:  lotID,
		To:     r.To,
		Amount: r.Amount,
		Price:  r.Price,
		Type:   transferType,
	}, nil
}

// RetireRequest represents a request to retire credits.
type RetireRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// ListRequest puts a lot on the marketplace.
type ListRequest struct {
	AskingPrice  decimal.Decimal  `json:"asking_price"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ListRequest) ToUseCaseInput(lotID string) usecase.ListInput {
	return usecase.ListInput{
		LotID:        lotID,
		AskingPrice:  r.AskingPrice,
		ReservePrice: r.ReservePrice,
	}
}

// BidRequest places a bid on a listed lot.
type BidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// ToUseCaseInput converts to use case input.
func (r *BidRequest) ToUseCaseInput(lotID string) usecase.BidInput {
	return usecase.BidInput{
		LotID:  lotID,
		Amount: r.Amount,
		Price:  r.Price,
	}
}
