package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

const grantColumns = `id, student_id, service_type, source, quantity, origin_items, created_by, created_at`

// CreateGrant persists a new immutable entitlement grant.
func (s *SQLStore) CreateGrant(ctx context.Context, grant *models.EntitlementGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO entitlement_grants (id, student_id, service_type, source, quantity, origin_items, created_by, created_at)
        VALUES (:id, :student_id, :service_type, :source, :quantity, :origin_items, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, grant); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// ListGrants returns grants for a student, optionally narrowed to one
// service type, ordered by source priority then age.
func (s *SQLStore) ListGrants(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM entitlement_grants WHERE student_id = $1`
	args := []interface{}{studentID}
	if serviceType != "" {
		query += ` AND service_type = $2`
		args = append(args, serviceType)
	}
	query += ` ORDER BY created_at ASC`

	var grants []models.EntitlementGrant
	if err := sqlx.SelectContext(ctx, s.ext, &grants, query, args...); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// GrantsForUpdate locks the grant rows for a (student, serviceType)
// key. Locking these rows serializes concurrent balance-consuming
// transactions on the same key.
func (s *SQLStore) GrantsForUpdate(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error) {
	const query = `SELECT ` + grantColumns + ` FROM entitlement_grants
        WHERE student_id = $1 AND service_type = $2 ORDER BY created_at ASC FOR UPDATE`
	var grants []models.EntitlementGrant
	if err := sqlx.SelectContext(ctx, s.ext, &grants, query, studentID, serviceType); err != nil {
		return nil, fmt.Errorf("lock grants: %w", err)
	}
	return grants, nil
}
