package models

import "time"

// StatementFormat enumerates supported ledger statement exports.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

// StatementStatus captures background export job lifecycle states.
type StatementStatus string

const (
	StatementStatusQueued     StatementStatus = "QUEUED"
	StatementStatusProcessing StatementStatus = "PROCESSING"
	StatementStatusFinished   StatementStatus = "FINISHED"
	StatementStatusFailed     StatementStatus = "FAILED"
)

// StatementJob is persisted metadata for an asynchronous ledger
// statement export.
type StatementJob struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	ServiceType  *string         `db:"service_type" json:"service_type,omitempty"`
	Format       StatementFormat `db:"format" json:"format"`
	Status       StatementStatus `db:"status" json:"status"`
	FilePath     *string         `db:"file_path" json:"-"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}
