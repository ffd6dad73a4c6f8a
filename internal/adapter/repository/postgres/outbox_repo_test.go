package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/domain"
)

var outboxColumns = []string{
	"id", "aggregate_id", "aggregate_type", "event_type", "payload", "created_at", "published_at", "published",
}

func TestOutboxRepositoryCreate(t *testing.T) {
	mock := newMockPool(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := domain.NewLotEvent("evt-1", "VCS-2024-000001", domain.EventTypeCreditIssued, map[string]any{"amount": "1000"}, now)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO outbox_events").
		WithArgs("evt-1", "VCS-2024-000001", event.AggregateType, domain.EventTypeCreditIssued,
			[]byte(`{"amount":"1000"}`), pgxmock.AnyArg(), false).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow("evt-1", "VCS-2024-000001", event.AggregateType, domain.EventTypeCreditIssued,
				[]byte(`{"amount":"1000"}`), timeToPgTimestamptz(now), timePtrToPgTimestamptz(nil), false))
	mock.ExpectCommit()

	tx, err := newTxManagerWithPool(mock).Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, newOutboxRepository(mock).Create(context.Background(), tx, event))
	require.NoError(t, tx.Commit(context.Background()))
	assertExpectations(t, mock)
}

func TestOutboxRepositoryGetUnpublished(t *testing.T) {
	mock := newMockPool(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM outbox_events").
		WithArgs(int32(50)).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow("evt-1", "VCS-2024-000001", "credit_lot", domain.EventTypeLotListed,
				[]byte(`{"asking_price":"25"}`), timeToPgTimestamptz(now), timePtrToPgTimestamptz(nil), false))

	events, err := newOutboxRepository(mock).GetUnpublished(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "25", events[0].Payload["asking_price"])
	assert.Nil(t, events[0].PublishedAt)
	assertExpectations(t, mock)
}
