package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/postgres/generated"
	"github.com/iho/carbonledger/internal/usecase"
)

// LotRepository implements usecase.LotRepository. Each lot is one row: the
// full document in JSONB plus the columns lookups filter on.
type LotRepository struct {
	queries *generated.Queries
}

// NewLotRepository creates a new LotRepository. Pass a replica pool to get a
// read-only usecase.LotReader.
func NewLotRepository(pool *pgxpool.Pool) *LotRepository {
	return newLotRepository(pool)
}

func newLotRepository(db generated.DBTX) *LotRepository {
	return &LotRepository{queries: generated.New(db)}
}

// GetByID retrieves a lot by ID.
func (r *LotRepository) GetByID(ctx context.Context, id string) (*domain.CreditLot, error) {
	row, err := r.queries.GetCreditLot(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.LotError(domain.ErrLotNotFound, id, "", "no such lot")
		}
		return nil, err
	}

	return decodeLot(row.Document, row.Version)
}

// Query retrieves lots matching filter, ordered by lot id unless the filter
// asks for asking price order.
func (r *LotRepository) Query(ctx context.Context, filter domain.LotFilter) ([]*domain.CreditLot, error) {
	params := generated.QueryCreditLotsParams{
		Owner:              textOrNull(filter.Owner),
		VerificationStatus: textOrNull(string(filter.VerificationStatus)),
		Methodology:        textOrNull(string(filter.Methodology)),
		Standard:           textOrNull(string(filter.Standard)),
		ParentLotID:        textOrNull(filter.ParentLotID),
		Settlement:         textOrNull(string(filter.Settlement)),
		ValidUntilBefore:   timePtrToPgTimestamptz(filter.ValidUntilBefore),
		ValidUntilAfter:    timePtrToPgTimestamptz(filter.ValidUntilAfter),
		MaxAskingPrice:     decimalPtrToNumeric(filter.MaxAskingPrice),
		OrderByAskingPrice: filter.OrderByAskingPrice,
		RowLimit:           math.MaxInt32,
		RowOffset:          int32(filter.Offset),
	}
	if filter.VintageYear != 0 {
		params.VintageYear = pgtype.Int4{Int32: int32(filter.VintageYear), Valid: true}
	}
	if filter.Listed != nil {
		params.Listed = pgtype.Bool{Bool: *filter.Listed, Valid: true}
	}
	if filter.Limit > 0 {
		params.RowLimit = int32(filter.Limit)
	}

	rows, err := r.queries.QueryCreditLots(ctx, params)
	if err != nil {
		return nil, err
	}

	lots := make([]*domain.CreditLot, 0, len(rows))
	for _, row := range rows {
		lot, err := decodeLot(row.Document, row.Version)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}

	return lots, nil
}

// Create inserts a new lot with version 1 within a transaction.
func (r *LotRepository) Create(ctx context.Context, tx usecase.Transaction, lot *domain.CreditLot) error {
	lot.Version = 1
	document, err := json.Marshal(lot)
	if err != nil {
		return fmt.Errorf("encode lot %s: %w", lot.ID, err)
	}

	queries := generated.New(tx.(*Tx).PgxTx())
	err = queries.CreateCreditLot(ctx, generated.CreateCreditLotParams{
		LotID:              lot.ID,
		CurrentOwner:       lot.CurrentOwner,
		VerificationStatus: string(lot.VerificationStatus),
		Settlement:         string(lot.Settlement),
		Listed:             lot.Market.Listed,
		AskingPrice:        decimalPtrToNumeric(lot.Market.AskingPrice),
		VintageYear:        int32(lot.VintageYear),
		Methodology:        string(lot.Methodology),
		Standard:           string(lot.Standard),
		ParentLotID:        textOrNull(lot.ParentLotID),
		ValidUntil:         timeToPgTimestamptz(lot.ValidUntil),
		Version:            lot.Version,
		Document:           document,
		CreatedAt:          timeToPgTimestamptz(lot.CreatedAt),
		UpdatedAt:          timeToPgTimestamptz(lot.UpdatedAt),
	})
	if isUniqueViolation(err) {
		return domain.LotError(domain.ErrLotExists, lot.ID, "", "lot id already taken")
	}

	return err
}

// CompareAndSwap replaces the row only if its version is still expectedVersion
// and the stored history is not longer than the new one.
func (r *LotRepository) CompareAndSwap(ctx context.Context, tx usecase.Transaction, expectedVersion int64, lot *domain.CreditLot) error {
	next := expectedVersion + 1
	stored := *lot
	stored.Version = next
	document, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode lot %s: %w", lot.ID, err)
	}

	queries := generated.New(tx.(*Tx).PgxTx())
	affected, err := queries.SwapCreditLot(ctx, generated.SwapCreditLotParams{
		CurrentOwner:       lot.CurrentOwner,
		VerificationStatus: string(lot.VerificationStatus),
		Settlement:         string(lot.Settlement),
		Listed:             lot.Market.Listed,
		AskingPrice:        decimalPtrToNumeric(lot.Market.AskingPrice),
		ValidUntil:         timeToPgTimestamptz(lot.ValidUntil),
		Version:            next,
		Document:           document,
		UpdatedAt:          timeToPgTimestamptz(lot.UpdatedAt),
		LotID:              lot.ID,
		ExpectedVersion:    expectedVersion,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.swapRejected(ctx, queries, expectedVersion, lot.ID)
	}

	lot.Version = next
	return nil
}

// swapRejected reads the row inside the same transaction to tell a stale
// version apart from a write that would drop transfer history.
func (r *LotRepository) swapRejected(ctx context.Context, queries *generated.Queries, expectedVersion int64, lotID string) error {
	row, err := queries.GetCreditLot(ctx, lotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LotError(domain.ErrLotNotFound, lotID, "", "no such lot")
		}
		return err
	}
	if row.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	return domain.LotError(domain.ErrStateConflict, lotID, domain.InvariantAppendOnlyHistory,
		"transfer history may only be appended to")
}

// NextSequence returns the next issuance number for vintage.
func (r *LotRepository) NextSequence(ctx context.Context, vintage int) (int64, error) {
	return r.queries.NextLotSequence(ctx, int32(vintage))
}

func decodeLot(document []byte, version int64) (*domain.CreditLot, error) {
	var lot domain.CreditLot
	if err := json.Unmarshal(document, &lot); err != nil {
		return nil, fmt.Errorf("decode lot document: %w", err)
	}
	lot.Version = version
	return &lot, nil
}
