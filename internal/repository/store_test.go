package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

func TestWithTxCommits(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
			EventType:     "hold.created",
			AggregateID:   "h-1",
			AggregateType: "service_hold",
			Payload:       []byte(`{}`),
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxReusesOpenTransaction(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// the nested WithTx must not begin a second transaction
	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.WithTx(ctx, func(ctx context.Context, inner Store) error {
			return inner.InsertOutboxEvent(ctx, &models.OutboxEvent{
				EventType:     "hold.created",
				AggregateID:   "h-1",
				AggregateType: "service_hold",
				Payload:       []byte(`{}`),
			})
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxMarksSerializationFailureTransient(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		return &pq.Error{Code: "40001"}
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrTransientStore.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContractStoreGet(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, status, activated_at, created_at, updated_at FROM contracts WHERE id = $1")).
		WithArgs("ctr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "status", "activated_at", "created_at", "updated_at"}).
			AddRow("ctr-1", "stu-1", "signed", nil, time.Now(), time.Now()))

	contract, err := store.GetContract(context.Background(), "ctr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusSigned, contract.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContractStoreActivate(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	activatedAt := time.Now().UTC()
	mock.ExpectExec("UPDATE contracts SET status = 'active', activated_at = \\$2, updated_at = \\$2\\s+WHERE id = \\$1 AND status = 'signed'").
		WithArgs("ctr-1", activatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	activated, err := store.ActivateContract(context.Background(), "ctr-1", activatedAt)
	require.NoError(t, err)
	assert.True(t, activated)

	// re-delivery: status guard misses
	mock.ExpectExec("UPDATE contracts SET status = 'active', activated_at = \\$2, updated_at = \\$2\\s+WHERE id = \\$1 AND status = 'signed'").
		WithArgs("ctr-1", activatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	activated, err = store.ActivateContract(context.Background(), "ctr-1", activatedAt)
	require.NoError(t, err)
	assert.False(t, activated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
