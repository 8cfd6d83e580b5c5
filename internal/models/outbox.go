package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries bounds per-row delivery attempts before a row
// is parked as failed for manual triage.
const DefaultOutboxMaxRetries = 3

// OutboxEvent is a domain event written in the same transaction as the
// mutation it describes, and delivered asynchronously by the publisher
// daemon. Rows are mutated only by the daemon.
type OutboxEvent struct {
	ID            string          `db:"id" json:"id"`
	EventType     string          `db:"event_type" json:"event_type"`
	AggregateID   string          `db:"aggregate_id" json:"aggregate_id"`
	AggregateType string          `db:"aggregate_type" json:"aggregate_type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	MaxRetries    int             `db:"max_retries" json:"max_retries"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time      `db:"published_at" json:"published_at,omitempty"`
}
