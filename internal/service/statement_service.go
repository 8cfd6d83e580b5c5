package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/jobs"
)

// CreateStatementRequest queues an asynchronous ledger statement export.
type CreateStatementRequest struct {
	StudentID   string                 `json:"student_id" validate:"required"`
	ServiceType *string                `json:"service_type,omitempty"`
	Format      models.StatementFormat `json:"format" validate:"required,oneof=csv pdf"`
	CreatedBy   string                 `json:"created_by" validate:"required"`
}

// StatementServiceConfig governs the export workers and cleanup.
type StatementServiceConfig struct {
	Workers         int
	MaxRetries      int
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// StatementDownload aggregates resolved download data.
type StatementDownload struct {
	File      *os.File
	Filename  string
	Format    models.StatementFormat
	ExpiresAt time.Time
}

// StatementService orchestrates statement export jobs: persist, queue,
// render, and resolve signed downloads.
type StatementService struct {
	store     repository.Store
	exporter  *StatementExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       StatementServiceConfig
	queue     *jobs.Queue
}

// NewStatementService constructs the statement service and its worker
// queue. Call Start before creating jobs.
func NewStatementService(store repository.Store, exporter *StatementExportService, validate *validator.Validate, logger *zap.Logger, cfg StatementServiceConfig) *StatementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	s := &StatementService{
		store:     store,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
	s.queue = jobs.NewQueue("statements", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers and the periodic file cleanup.
func (s *StatementService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.cfg.CleanupInterval > 0 {
		go s.cleanupLoop(ctx)
	}
}

// Stop drains the workers.
func (s *StatementService) Stop() {
	s.queue.Stop()
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *StatementService) CreateJob(ctx context.Context, req CreateStatementRequest) (*models.StatementJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid statement payload")
	}

	job := &models.StatementJob{
		StudentID:   req.StudentID,
		ServiceType: req.ServiceType,
		Format:      req.Format,
		CreatedBy:   req.CreatedBy,
	}
	if err := s.store.CreateStatementJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create statement job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Format)}); err != nil {
		_ = s.store.FailStatementJob(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue statement job")
	}
	return job, nil
}

// GetStatus returns job metadata.
func (s *StatementService) GetStatus(ctx context.Context, id string) (*models.StatementJob, error) {
	job, err := s.store.GetStatementJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement job")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the stored file.
func (s *StatementService) ResolveDownload(ctx context.Context, token string) (*StatementDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.StatementStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "statement not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open statement file")
	}
	return &StatementDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// handleJob is the queue worker: render the statement and finalize the
// job row. A returned error triggers queue-level retry.
func (s *StatementService) handleJob(ctx context.Context, job jobs.Job) error {
	record, err := s.store.GetStatementJob(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("queued statement job missing", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if record.Status == models.StatementStatusFinished {
		return nil
	}

	if err := s.store.MarkStatementProcessing(ctx, record.ID); err != nil {
		return err
	}

	result, err := s.exporter.Generate(ctx, record)
	if err != nil {
		if failErr := s.store.FailStatementJob(ctx, record.ID, err.Error()); failErr != nil {
			s.logger.Error("failed to mark statement job failed",
				zap.String("job_id", record.ID), zap.Error(failErr))
		}
		return err
	}

	if err := s.store.FinishStatementJob(ctx, record.ID, result.RelativePath, result.URL); err != nil {
		return err
	}
	s.logger.Info("statement generated",
		zap.String("job_id", record.ID),
		zap.String("student_id", record.StudentID),
		zap.String("format", string(record.Format)))
	return nil
}

func (s *StatementService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.exporter.Cleanup(s.cfg.ResultTTL)
			if err != nil {
				s.logger.Warn("statement cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Info("expired statement files removed", zap.Int("count", len(deleted)))
			}
		}
	}
}
