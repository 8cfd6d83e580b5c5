package models

import (
	"encoding/json"
	"fmt"
)

// Inbound event types consumed from upstream domains.
const (
	EventSessionCompleted       = "session.completed"
	EventSessionCancelled       = "session.cancelled"
	EventPaymentSucceeded       = "payment.succeeded"
	EventJobAppStatusChanged    = "job_application.status_changed"
	EventJobAppStatusRolledBack = "job_application.rolled_back"
)

// Outbound event types emitted through the outbox.
const (
	EventEntitlementGranted  = "entitlement.granted"
	EventEntitlementConsumed = "entitlement.consumed"
	EventEntitlementRefunded = "entitlement.refunded"
	EventEntitlementAdjusted = "entitlement.adjusted"
	EventHoldCreated         = "hold.created"
	EventHoldReleased        = "hold.released"
	EventHoldCancelled       = "hold.cancelled"
	EventHoldExpired         = "hold.expired"
)

// EventPayload is the closed set of inbound payload variants. One
// variant exists per inbound event type; decoding happens once at the
// transport boundary so consumers never touch raw JSON.
type EventPayload interface {
	EventType() string
}

// SessionCompletedPayload signals that a booked session finished.
type SessionCompletedPayload struct {
	BookingID   string `json:"booking_id"`
	StudentID   string `json:"student_id"`
	ServiceType string `json:"service_type"`
	CompletedBy string `json:"completed_by,omitempty"`
}

// EventType implements EventPayload.
func (SessionCompletedPayload) EventType() string { return EventSessionCompleted }

// SessionCancelledPayload signals that a booked session was cancelled.
type SessionCancelledPayload struct {
	BookingID   string `json:"booking_id"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// EventType implements EventPayload.
func (SessionCancelledPayload) EventType() string { return EventSessionCancelled }

// PaymentSucceededPayload signals that a contract payment cleared.
type PaymentSucceededPayload struct {
	ContractID string `json:"contract_id"`
	PaymentID  string `json:"payment_id"`
	StudentID  string `json:"student_id,omitempty"`
}

// EventType implements EventPayload.
func (PaymentSucceededPayload) EventType() string { return EventPaymentSucceeded }

// JobAppStatusChangedPayload signals a placement milestone was reached.
type JobAppStatusChangedPayload struct {
	ApplicationID string `json:"application_id"`
	BookingID     string `json:"booking_id"`
	StudentID     string `json:"student_id"`
	ServiceType   string `json:"service_type"`
	Status        string `json:"status"`
}

// EventType implements EventPayload.
func (JobAppStatusChangedPayload) EventType() string { return EventJobAppStatusChanged }

// JobAppRolledBackPayload signals a placement milestone was reverted.
type JobAppRolledBackPayload struct {
	ApplicationID string `json:"application_id"`
	BookingID     string `json:"booking_id"`
	StudentID     string `json:"student_id"`
	ServiceType   string `json:"service_type"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason,omitempty"`
}

// EventType implements EventPayload.
func (JobAppRolledBackPayload) EventType() string { return EventJobAppStatusRolledBack }

// DecodeEventPayload parses the raw payload of an inbound event into
// its typed variant. Unknown event types are an error, never a silent
// pass-through.
func DecodeEventPayload(eventType string, raw json.RawMessage) (EventPayload, error) {
	switch eventType {
	case EventSessionCompleted:
		var p SessionCompletedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventSessionCancelled:
		var p SessionCancelledPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventPaymentSucceeded:
		var p PaymentSucceededPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventJobAppStatusChanged:
		var p JobAppStatusChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventJobAppStatusRolledBack:
		var p JobAppRolledBackPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
