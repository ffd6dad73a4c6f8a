package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/usecase"
)

func TestLotFromDomainDerivesAmounts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lot := &domain.CreditLot{
		ID:                "CC-2024-000001",
		TotalIssuedAmount: decimal.NewFromInt(1000),
		CurrentOwner:      "ACME",
		TransferHistory: []domain.TransferRecord{
			{TransactionID: "t1", From: "ACME", To: "BETA", Amount: decimal.NewFromInt(300), Type: domain.TransferTypeSale, ChildLotID: "CC-2024-000001-aaaaaaaa", Timestamp: now},
			{TransactionID: "t2", From: "ACME", To: "ACME", Amount: decimal.NewFromInt(200), Type: domain.TransferTypeRetirement, Timestamp: now},
		},
	}

	resp := LotFromDomain(lot)
	assert.True(t, resp.AvailableAmount.Equal(decimal.NewFromInt(500)), resp.AvailableAmount.String())
	assert.True(t, resp.RetiredAmount.Equal(decimal.NewFromInt(200)), resp.RetiredAmount.String())
	assert.Nil(t, LotFromDomain(nil))
}

func TestSweepFromUseCaseMergesFailures(t *testing.T) {
	resp := SweepFromUseCase(
		&usecase.SettlementResult{Confirmed: []string{"a"}, Failed: map[string]string{"b": "conflict"}},
		&usecase.ExpiryResult{Scanned: 3, Failed: map[string]string{"c": "conflict"}},
	)

	assert.Equal(t, []string{"a"}, resp.Confirmed)
	assert.Equal(t, []string{}, resp.Voided)
	assert.Equal(t, []string{}, resp.Expired)
	assert.Equal(t, 3, resp.Scanned)
	assert.Len(t, resp.Failed, 2)
}
