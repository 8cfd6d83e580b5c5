package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

// GetContract returns the minimal contract context.
func (s *SQLStore) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	const query = `SELECT id, student_id, status, activated_at, created_at, updated_at FROM contracts WHERE id = $1`
	var contract models.Contract
	if err := sqlx.GetContext(ctx, s.ext, &contract, query, id); err != nil {
		return nil, err
	}
	return &contract, nil
}

// ActivateContract flips a signed contract to active. The status guard
// in the WHERE clause makes re-delivery of payment.succeeded a no-op.
func (s *SQLStore) ActivateContract(ctx context.Context, id string, activatedAt time.Time) (bool, error) {
	const query = `UPDATE contracts SET status = 'active', activated_at = $2, updated_at = $2
        WHERE id = $1 AND status = 'signed'`
	result, err := s.ext.ExecContext(ctx, query, id, activatedAt)
	if err != nil {
		return false, fmt.Errorf("activate contract: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate contract result: %w", err)
	}
	return affected > 0, nil
}
