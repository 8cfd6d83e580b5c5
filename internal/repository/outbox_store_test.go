package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
)

func outboxRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "event_type", "aggregate_id", "aggregate_type", "payload",
		"status", "retry_count", "max_retries", "error_message", "created_at", "published_at",
	})
}

func TestOutboxStoreInsertDefaults(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(sqlmock.AnyArg(), "entitlement.consumed", "e-1", "ledger_entry", []byte(`{}`),
			"pending", 0, models.DefaultOutboxMaxRetries, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &models.OutboxEvent{
		EventType:     "entitlement.consumed",
		AggregateID:   "e-1",
		AggregateType: "ledger_entry",
		Payload:       []byte(`{}`),
	}
	err := store.InsertOutboxEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, event.Status)
	assert.Equal(t, models.DefaultOutboxMaxRetries, event.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreInsertUsesConfiguredMaxRetries(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store = store.WithOutboxMaxRetries(5)

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(sqlmock.AnyArg(), "hold.created", "h-1", "service_hold", []byte(`{}`),
			"pending", 0, 5, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &models.OutboxEvent{
		EventType:     "hold.created",
		AggregateID:   "h-1",
		AggregateType: "service_hold",
		Payload:       []byte(`{}`),
	}
	require.NoError(t, store.InsertOutboxEvent(context.Background(), event))
	assert.Equal(t, 5, event.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreConfiguredMaxRetriesSurvivesTx(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store = store.WithOutboxMaxRetries(7)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(sqlmock.AnyArg(), "hold.created", "h-2", "service_hold", []byte(`{}`),
			"pending", 0, 7, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
			EventType:     "hold.created",
			AggregateID:   "h-2",
			AggregateType: "service_hold",
			Payload:       []byte(`{}`),
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreClaimPendingEvents(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM outbox_events\\s+WHERE status = 'pending' AND retry_count < max_retries\\s+ORDER BY created_at ASC LIMIT \\$1").
		WithArgs(100).
		WillReturnRows(outboxRows().
			AddRow("evt-1", "hold.created", "h-1", "service_hold", []byte(`{}`), "pending", 0, 3, nil, time.Now(), nil))

	events, err := store.ClaimPendingEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreMarkEventPublished(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	publishedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET status = 'published', published_at = $2, error_message = NULL WHERE id = $1")).
		WithArgs("evt-1", publishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkEventPublished(context.Background(), "evt-1", publishedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreRecordPublishFailure(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery("(?s)UPDATE outbox_events\\s+SET retry_count = retry_count \\+ 1,.*RETURNING status").
		WithArgs("evt-1", "broker unavailable").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

	status, err := store.RecordPublishFailure(context.Background(), "evt-1", "broker unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreResetFailedEvents(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	newerThan := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectExec("UPDATE outbox_events SET status = 'pending', retry_count = 0, error_message = NULL\\s+WHERE status = 'failed' AND created_at >= \\$1").
		WithArgs(newerThan).
		WillReturnResult(sqlmock.NewResult(0, 2))

	reset, err := store.ResetFailedEvents(context.Background(), newerThan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreDeletePublishedBefore(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outbox_events WHERE status = 'published' AND published_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := store.DeletePublishedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreCountByStatus(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM outbox_events GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("published", 10).
			AddRow("failed", 1))

	counts, err := store.CountOutboxByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.OutboxStatusPending])
	assert.Equal(t, 10, counts[models.OutboxStatusPublished])
	assert.Equal(t, 1, counts[models.OutboxStatusFailed])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreTryPublishLock(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	unlock, acquired, err := store.TryPublishLock(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NotNil(t, unlock)
	unlock()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStoreTryPublishLockHeldElsewhere(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	unlock, acquired, err := store.TryPublishLock(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
