package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	"github.com/noah-isme/entitlement-api/pkg/export"
	"github.com/noah-isme/entitlement-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// StatementExportConfig tunes statement rendering.
type StatementExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StatementExportResult captures successful generation metadata.
type StatementExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.StatementFormat
	ExpiresAt    time.Time
}

// StatementExportService renders ledger statements and persists the
// files with signed download URLs.
type StatementExportService struct {
	store   repository.Store
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     StatementExportConfig
}

// NewStatementExportService constructs the exporter.
func NewStatementExportService(store repository.Store, files fileStorage, signer *storage.SignedURLSigner, cfg StatementExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *StatementExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &StatementExportService{
		store:   store,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the student's ledger history and stores the file.
func (s *StatementExportService) Generate(ctx context.Context, job *models.StatementJob) (*StatementExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Format {
	case models.StatementFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.StatementFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/statements/download?token=%s", prefix, token)

	return &StatementExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *StatementExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a read handle for a stored statement file.
func (s *StatementExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored statement file.
func (s *StatementExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes statement files older than the TTL.
func (s *StatementExportService) Cleanup(ttl time.Duration) ([]string, error) {
	return s.storage.CleanupOlderThan(ttl)
}

func (s *StatementExportService) buildFilename(job *models.StatementJob) string {
	stamp := time.Now().UTC().Format("20060102T150405")
	scope := "all"
	if job.ServiceType != nil && *job.ServiceType != "" {
		scope = *job.ServiceType
	}
	return fmt.Sprintf("%s/%s_%s_%s.%s", job.StudentID, job.ID, scope, stamp, job.Format)
}

func (s *StatementExportService) buildDataset(ctx context.Context, job *models.StatementJob) (export.Dataset, string, error) {
	headers := []string{"created_at", "operation_type", "service_type", "quantity_change", "balance_after", "related_booking_id", "reason", "created_by"}
	rows := make([]map[string]string, 0)

	filter := models.LedgerFilter{StudentID: job.StudentID, Page: 1, PageSize: 100}
	if job.ServiceType != nil {
		filter.ServiceType = *job.ServiceType
	}
	for {
		entries, total, err := s.store.ListLedgerEntries(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("load ledger entries: %w", err)
		}
		for _, entry := range entries {
			row := map[string]string{
				"created_at":      entry.CreatedAt.UTC().Format(time.RFC3339),
				"operation_type":  string(entry.OperationType),
				"service_type":    entry.ServiceType,
				"quantity_change": strconv.Itoa(entry.QuantityChange),
				"balance_after":   strconv.Itoa(entry.BalanceAfter),
				"created_by":      entry.CreatedBy,
			}
			if entry.RelatedBookingID != nil {
				row["related_booking_id"] = *entry.RelatedBookingID
			}
			if entry.Reason != nil {
				row["reason"] = *entry.Reason
			}
			rows = append(rows, row)
		}
		if len(rows) >= total || len(entries) == 0 {
			break
		}
		filter.Page++
	}

	title := fmt.Sprintf("Entitlement statement %s", job.StudentID)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}
