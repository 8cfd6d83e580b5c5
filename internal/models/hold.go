package models

import "time"

// HoldStatus tracks the hold state machine. A hold starts active and
// ends in exactly one of the terminal states.
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusReleased  HoldStatus = "released"
	HoldStatusCancelled HoldStatus = "cancelled"
	HoldStatusExpired   HoldStatus = "expired"
)

// Terminal reports whether the status ends the hold lifecycle.
func (s HoldStatus) Terminal() bool {
	switch s {
	case HoldStatusReleased, HoldStatusCancelled, HoldStatusExpired:
		return true
	}
	return false
}

// ServiceHold is a temporary soft reservation of balance pending a
// booking outcome. Only active holds count toward the held quantity.
type ServiceHold struct {
	ID               string     `db:"id" json:"id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	ServiceType      string     `db:"service_type" json:"service_type"`
	Quantity         int        `db:"quantity" json:"quantity"`
	RelatedBookingID *string    `db:"related_booking_id" json:"related_booking_id,omitempty"`
	Status           HoldStatus `db:"status" json:"status"`
	Reason           *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	ClosedAt         *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}
