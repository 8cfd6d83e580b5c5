package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/entitlement-api/internal/models"
)

// CreateStatementJob persists a queued statement export job.
func (s *SQLStore) CreateStatementJob(ctx context.Context, job *models.StatementJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.StatementStatusQueued
	}
	const query = `INSERT INTO statement_jobs (id, student_id, service_type, format, status, file_path, result_url, created_by, created_at, finished_at, error_message)
        VALUES (:id, :student_id, :service_type, :format, :status, :file_path, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext, query, job); err != nil {
		return fmt.Errorf("create statement job: %w", err)
	}
	return nil
}

// GetStatementJob returns a statement job by id.
func (s *SQLStore) GetStatementJob(ctx context.Context, id string) (*models.StatementJob, error) {
	const query = `SELECT id, student_id, service_type, format, status, file_path, result_url, created_by, created_at, finished_at, error_message
        FROM statement_jobs WHERE id = $1`
	var job models.StatementJob
	if err := sqlx.GetContext(ctx, s.ext, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkStatementProcessing transitions a job to PROCESSING.
func (s *SQLStore) MarkStatementProcessing(ctx context.Context, id string) error {
	const query = `UPDATE statement_jobs SET status = 'PROCESSING' WHERE id = $1`
	if _, err := s.ext.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark statement processing: %w", err)
	}
	return nil
}

// FinishStatementJob records a successful export.
func (s *SQLStore) FinishStatementJob(ctx context.Context, id, filePath, resultURL string) error {
	const query = `UPDATE statement_jobs SET status = 'FINISHED', file_path = $2, result_url = $3, finished_at = $4, error_message = NULL
        WHERE id = $1`
	if _, err := s.ext.ExecContext(ctx, query, id, filePath, resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish statement job: %w", err)
	}
	return nil
}

// FailStatementJob records a failed export.
func (s *SQLStore) FailStatementJob(ctx context.Context, id, errorMessage string) error {
	const query = `UPDATE statement_jobs SET status = 'FAILED', finished_at = $2, error_message = $3 WHERE id = $1`
	if _, err := s.ext.ExecContext(ctx, query, id, time.Now().UTC(), errorMessage); err != nil {
		return fmt.Errorf("fail statement job: %w", err)
	}
	return nil
}
