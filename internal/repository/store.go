package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/entitlement-api/internal/models"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// UnlockFunc releases an acquired advisory lock. Safe to call once.
type UnlockFunc func()

// Store is the single persistence boundary for grants, ledger entries,
// holds, the event outbox and contracts. Every invariant-bearing write
// goes through WithTx so the re-read and the write share one
// transaction; there is no in-process lock protecting the ledger.
type Store interface {
	// WithTx runs fn inside a transaction. Calling WithTx on a store
	// that is already transactional reuses the open transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Entitlement grants (immutable once created).
	CreateGrant(ctx context.Context, grant *models.EntitlementGrant) error
	ListGrants(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error)
	GrantsForUpdate(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error)

	// Ledger entries (append-only).
	InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error)
	SumLedgerNet(ctx context.Context, studentID, serviceType string) (int, error)
	NetConsumedForBooking(ctx context.Context, studentID, serviceType, bookingID string) (int, error)

	// Service holds (mutable status only).
	CreateHold(ctx context.Context, hold *models.ServiceHold) error
	GetHold(ctx context.Context, id string) (*models.ServiceHold, error)
	ActiveHolds(ctx context.Context, studentID, serviceType string) ([]models.ServiceHold, error)
	ActiveHoldsByBooking(ctx context.Context, bookingID string) ([]models.ServiceHold, error)
	TransitionHold(ctx context.Context, id string, from, to models.HoldStatus, reason string) (bool, error)
	SetHoldBooking(ctx context.Context, id, bookingID string) (bool, error)
	ExpireHoldsBefore(ctx context.Context, cutoff time.Time) ([]models.ServiceHold, error)

	// Event outbox.
	InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
	ClaimPendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error
	RecordPublishFailure(ctx context.Context, id, errorMessage string) (models.OutboxStatus, error)
	ResetFailedEvents(ctx context.Context, newerThan time.Time) (int64, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
	TryPublishLock(ctx context.Context, key int64) (UnlockFunc, bool, error)

	// Contracts (payment consumer only flips signed -> active).
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	ActivateContract(ctx context.Context, id string, activatedAt time.Time) (bool, error)

	// Statement export jobs.
	CreateStatementJob(ctx context.Context, job *models.StatementJob) error
	GetStatementJob(ctx context.Context, id string) (*models.StatementJob, error)
	MarkStatementProcessing(ctx context.Context, id string) error
	FinishStatementJob(ctx context.Context, id, filePath, resultURL string) error
	FailStatementJob(ctx context.Context, id, errorMessage string) error
}

// SQLStore implements Store over PostgreSQL via sqlx.
type SQLStore struct {
	db               *sqlx.DB
	ext              sqlx.ExtContext
	outboxMaxRetries int
}

// NewStore wraps the database handle.
func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, ext: db, outboxMaxRetries: models.DefaultOutboxMaxRetries}
}

// WithOutboxMaxRetries sets the retry budget stamped on new outbox
// rows. Values below one keep the current budget.
func (s *SQLStore) WithOutboxMaxRetries(n int) *SQLStore {
	if n > 0 {
		s.outboxMaxRetries = n
	}
	return s
}

// WithTx begins a transaction and runs fn against a tx-bound store.
// Serialization failures and deadlocks are wrapped as transient errors
// so callers can decide to retry.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, ok := s.ext.(*sqlx.Tx); ok {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStore := &SQLStore{db: s.db, ext: tx, outboxMaxRetries: s.outboxMaxRetries}
	if err = fn(ctx, txStore); err != nil {
		return markTransient(err)
	}
	if err = tx.Commit(); err != nil {
		return markTransient(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// markTransient tags retry-safe PostgreSQL failures
// (serialization_failure, deadlock_detected).
func markTransient(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, appErrors.ErrTransientStore.Message)
		}
	}
	return err
}
