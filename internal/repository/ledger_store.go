package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

const ledgerColumns = `id, student_id, service_type, quantity_change, operation_type, balance_after,
        related_booking_id, related_hold_id, related_entry_id, booking_source, reason, created_by, created_at`

// InsertLedgerEntry appends an immutable ledger row. Entries are never
// updated or deleted; corrections are new entries.
func (s *SQLStore) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ledger_entries (id, student_id, service_type, quantity_change, operation_type, balance_after,
        related_booking_id, related_hold_id, related_entry_id, booking_source, reason, created_by, created_at)
        VALUES (:id, :student_id, :service_type, :quantity_change, :operation_type, :balance_after,
        :related_booking_id, :related_hold_id, :related_entry_id, :booking_source, :reason, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, entry); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntry returns a single entry by id.
func (s *SQLStore) GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	const query = `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`
	var entry models.LedgerEntry
	if err := sqlx.GetContext(ctx, s.ext, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLedgerEntries returns entries matching the filter, newest first.
func (s *SQLStore) ListLedgerEntries(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ServiceType != "" {
		conditions = append(conditions, fmt.Sprintf("service_type = $%d", len(args)+1))
		args = append(args, filter.ServiceType)
	}
	if filter.OperationType != "" {
		conditions = append(conditions, fmt.Sprintf("operation_type = $%d", len(args)+1))
		args = append(args, filter.OperationType)
	}
	if filter.BookingID != "" {
		conditions = append(conditions, fmt.Sprintf("related_booking_id = $%d", len(args)+1))
		args = append(args, filter.BookingID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT `+ledgerColumns+` FROM ledger_entries%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		clause, size, offset)

	var entries []models.LedgerEntry
	if err := sqlx.SelectContext(ctx, s.ext, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM ledger_entries" + clause
	var total int
	if err := sqlx.GetContext(ctx, s.ext, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return entries, total, nil
}

// SumLedgerNet returns the signed sum of quantity changes for a key.
// Consumption entries are negative; refunds and credit adjustments are
// positive, so the net consumed quantity is the negation of this sum.
func (s *SQLStore) SumLedgerNet(ctx context.Context, studentID, serviceType string) (int, error) {
	const query = `SELECT COALESCE(SUM(quantity_change), 0) FROM ledger_entries
        WHERE student_id = $1 AND service_type = $2`
	var sum int
	if err := sqlx.GetContext(ctx, s.ext, &sum, query, studentID, serviceType); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

// NetConsumedForBooking returns the net consumed quantity attributable
// to one booking (consumptions minus refunds), used to cap refunds.
func (s *SQLStore) NetConsumedForBooking(ctx context.Context, studentID, serviceType, bookingID string) (int, error) {
	const query = `SELECT COALESCE(-SUM(quantity_change), 0) FROM ledger_entries
        WHERE student_id = $1 AND service_type = $2 AND related_booking_id = $3
        AND operation_type IN ('consumption', 'refund')`
	var consumed int
	if err := sqlx.GetContext(ctx, s.ext, &consumed, query, studentID, serviceType, bookingID); err != nil {
		return 0, fmt.Errorf("sum booking consumption: %w", err)
	}
	return consumed, nil
}
