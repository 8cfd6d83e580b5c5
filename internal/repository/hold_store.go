package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

const holdColumns = `id, student_id, service_type, quantity, related_booking_id, status, reason, created_at, updated_at, closed_at`

// CreateHold inserts a new active hold.
func (s *SQLStore) CreateHold(ctx context.Context, hold *models.ServiceHold) error {
	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = now
	}
	hold.UpdatedAt = now
	if hold.Status == "" {
		hold.Status = models.HoldStatusActive
	}
	const query = `INSERT INTO service_holds (id, student_id, service_type, quantity, related_booking_id, status, reason, created_at, updated_at, closed_at)
        VALUES (:id, :student_id, :service_type, :quantity, :related_booking_id, :status, :reason, :created_at, :updated_at, :closed_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, hold); err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

// GetHold returns a hold by id.
func (s *SQLStore) GetHold(ctx context.Context, id string) (*models.ServiceHold, error) {
	const query = `SELECT ` + holdColumns + ` FROM service_holds WHERE id = $1`
	var hold models.ServiceHold
	if err := sqlx.GetContext(ctx, s.ext, &hold, query, id); err != nil {
		return nil, err
	}
	return &hold, nil
}

// ActiveHolds returns the active holds counting toward the held
// quantity for a (student, serviceType) key.
func (s *SQLStore) ActiveHolds(ctx context.Context, studentID, serviceType string) ([]models.ServiceHold, error) {
	const query = `SELECT ` + holdColumns + ` FROM service_holds
        WHERE student_id = $1 AND service_type = $2 AND status = 'active' ORDER BY created_at ASC`
	var holds []models.ServiceHold
	if err := sqlx.SelectContext(ctx, s.ext, &holds, query, studentID, serviceType); err != nil {
		return nil, fmt.Errorf("list active holds: %w", err)
	}
	return holds, nil
}

// ActiveHoldsByBooking returns active holds bound to a booking. At most
// one should exist; callers log a warning when that expectation is
// violated instead of hard-failing, because upstream duplicates happen.
func (s *SQLStore) ActiveHoldsByBooking(ctx context.Context, bookingID string) ([]models.ServiceHold, error) {
	const query = `SELECT ` + holdColumns + ` FROM service_holds
        WHERE related_booking_id = $1 AND status = 'active' ORDER BY created_at ASC`
	var holds []models.ServiceHold
	if err := sqlx.SelectContext(ctx, s.ext, &holds, query, bookingID); err != nil {
		return nil, fmt.Errorf("find holds by booking: %w", err)
	}
	return holds, nil
}

// TransitionHold moves a hold between states with a compare-and-set on
// the current status. Returns false when the hold was not in the
// expected state, which callers treat as an idempotent no-op.
func (s *SQLStore) TransitionHold(ctx context.Context, id string, from, to models.HoldStatus, reason string) (bool, error) {
	now := time.Now().UTC()
	var closedAt *time.Time
	if to.Terminal() {
		closedAt = &now
	}
	const query = `UPDATE service_holds SET status = $3, reason = $4, updated_at = $5, closed_at = $6
        WHERE id = $1 AND status = $2`
	result, err := s.ext.ExecContext(ctx, query, id, from, to, reason, now, closedAt)
	if err != nil {
		return false, fmt.Errorf("transition hold: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition hold result: %w", err)
	}
	return affected > 0, nil
}

// SetHoldBooking late-binds the downstream booking id once it exists.
// No state transition.
func (s *SQLStore) SetHoldBooking(ctx context.Context, id, bookingID string) (bool, error) {
	const query = `UPDATE service_holds SET related_booking_id = $2, updated_at = $3 WHERE id = $1`
	result, err := s.ext.ExecContext(ctx, query, id, bookingID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set hold booking: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set hold booking result: %w", err)
	}
	return affected > 0, nil
}

// ExpireHoldsBefore marks active holds created before the cutoff as
// expired and returns them so the caller can emit events.
func (s *SQLStore) ExpireHoldsBefore(ctx context.Context, cutoff time.Time) ([]models.ServiceHold, error) {
	now := time.Now().UTC()
	const query = `UPDATE service_holds SET status = 'expired', reason = 'hold ttl elapsed', updated_at = $2, closed_at = $2
        WHERE status = 'active' AND created_at < $1
        RETURNING ` + holdColumns
	var expired []models.ServiceHold
	if err := sqlx.SelectContext(ctx, s.ext, &expired, query, cutoff, now); err != nil {
		return nil, fmt.Errorf("expire holds: %w", err)
	}
	return expired, nil
}
