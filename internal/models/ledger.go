package models

import "time"

// OperationType classifies a ledger entry.
type OperationType string

const (
	OperationConsumption OperationType = "consumption"
	OperationRefund      OperationType = "refund"
	OperationAdjustment  OperationType = "adjustment"
	OperationInitial     OperationType = "initial"
	OperationExpiration  OperationType = "expiration"
)

// LedgerEntry is an immutable, append-only record of a balance-affecting
// event. Corrections are new entries, never edits.
type LedgerEntry struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	ServiceType      string        `db:"service_type" json:"service_type"`
	QuantityChange   int           `db:"quantity_change" json:"quantity_change"`
	OperationType    OperationType `db:"operation_type" json:"operation_type"`
	BalanceAfter     int           `db:"balance_after" json:"balance_after"`
	RelatedBookingID *string       `db:"related_booking_id" json:"related_booking_id,omitempty"`
	RelatedHoldID    *string       `db:"related_hold_id" json:"related_hold_id,omitempty"`
	RelatedEntryID   *string       `db:"related_entry_id" json:"related_entry_id,omitempty"`
	BookingSource    *string       `db:"booking_source" json:"booking_source,omitempty"`
	Reason           *string       `db:"reason" json:"reason,omitempty"`
	CreatedBy        string        `db:"created_by" json:"created_by"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	StudentID     string
	ServiceType   string
	OperationType string
	BookingID     string
	Page          int
	PageSize      int
}
