package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

const outboxColumns = `id, event_type, aggregate_id, aggregate_type, payload, status, retry_count, max_retries, error_message, created_at, published_at`

// InsertOutboxEvent appends a pending outbox row. Must be called inside
// the same transaction as the mutation the event describes.
func (s *SQLStore) InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = models.OutboxStatusPending
	}
	if event.MaxRetries <= 0 {
		if s.outboxMaxRetries > 0 {
			event.MaxRetries = s.outboxMaxRetries
		} else {
			event.MaxRetries = models.DefaultOutboxMaxRetries
		}
	}
	const query = `INSERT INTO outbox_events (id, event_type, aggregate_id, aggregate_type, payload, status, retry_count, max_retries, error_message, created_at, published_at)
        VALUES (:id, :event_type, :aggregate_id, :aggregate_type, :payload, :status, :retry_count, :max_retries, :error_message, :created_at, :published_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, event); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ClaimPendingEvents returns up to limit deliverable rows in FIFO
// order. FIFO is best-effort fairness, not a correctness requirement:
// consumers are idempotent regardless of delivery order.
func (s *SQLStore) ClaimPendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	const query = `SELECT ` + outboxColumns + ` FROM outbox_events
        WHERE status = 'pending' AND retry_count < max_retries
        ORDER BY created_at ASC LIMIT $1`
	var events []models.OutboxEvent
	if err := sqlx.SelectContext(ctx, s.ext, &events, query, limit); err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	return events, nil
}

// MarkEventPublished finalizes a successfully delivered row.
func (s *SQLStore) MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error {
	const query = `UPDATE outbox_events SET status = 'published', published_at = $2, error_message = NULL WHERE id = $1`
	if _, err := s.ext.ExecContext(ctx, query, id, publishedAt); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// RecordPublishFailure increments the retry counter and parks the row
// as failed once the retry budget is exhausted. Returns the resulting
// status so the daemon can log terminal failures.
func (s *SQLStore) RecordPublishFailure(ctx context.Context, id, errorMessage string) (models.OutboxStatus, error) {
	const query = `UPDATE outbox_events
        SET retry_count = retry_count + 1,
            error_message = $2,
            status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END
        WHERE id = $1
        RETURNING status`
	var status models.OutboxStatus
	if err := sqlx.GetContext(ctx, s.ext, &status, query, id, errorMessage); err != nil {
		return "", fmt.Errorf("record publish failure: %w", err)
	}
	return status, nil
}

// ResetFailedEvents moves recently failed rows back to pending for
// another round of delivery attempts. Older failures stay parked for
// manual triage.
func (s *SQLStore) ResetFailedEvents(ctx context.Context, newerThan time.Time) (int64, error) {
	const query = `UPDATE outbox_events SET status = 'pending', retry_count = 0, error_message = NULL
        WHERE status = 'failed' AND created_at >= $1`
	result, err := s.ext.ExecContext(ctx, query, newerThan)
	if err != nil {
		return 0, fmt.Errorf("reset failed events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset failed events result: %w", err)
	}
	return affected, nil
}

// DeletePublishedBefore removes delivered rows older than the retention
// cutoff. Failed rows are kept indefinitely.
func (s *SQLStore) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM outbox_events WHERE status = 'published' AND published_at < $1`
	result, err := s.ext.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete published events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete published events result: %w", err)
	}
	return affected, nil
}

// CountOutboxByStatus returns row counts per status for metrics.
func (s *SQLStore) CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM outbox_events GROUP BY status`
	rows, err := s.ext.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count outbox events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.OutboxStatus]int)
	for rows.Next() {
		var status models.OutboxStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox counts: %w", err)
	}
	return counts, nil
}

// TryPublishLock attempts the non-blocking advisory lock that keeps a
// single publisher active across instances. The lock is held on a
// dedicated pooled connection; if the holder's connection dies,
// PostgreSQL releases the lock with the session. There is no
// application-level lease on top of that.
func (s *SQLStore) TryPublishLock(ctx context.Context, key int64) (UnlockFunc, bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.GetContext(ctx, &acquired, `SELECT pg_try_advisory_lock($1)`, key); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		// Unlock on the same session that acquired the lock; a fresh
		// context so release still runs when the caller's is done.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, key)
		_ = conn.Close()
	}
	return release, true, nil
}
