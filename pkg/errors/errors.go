package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Business-rule violations
// (insufficient balance, refund cap) are never retried automatically;
// transient store errors are safe to retry at the caller.
var (
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict              = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInsufficientBalance   = New("INSUFFICIENT_BALANCE", http.StatusConflict, "insufficient available balance")
	ErrRefundExceedsConsumed = New("REFUND_EXCEEDS_CONSUMED", http.StatusConflict, "refund exceeds consumed quantity")
	ErrUnauthorized          = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden             = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrTransientStore        = New("TRANSIENT_STORE_ERROR", http.StatusServiceUnavailable, "temporary storage failure")
	ErrPublishFailure        = New("PUBLISH_FAILURE", http.StatusBadGateway, "event publish failed")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss is an internal sentinel, never surfaced over HTTP.
	ErrCacheMiss = New("CACHE_MISS", http.StatusInternalServerError, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// InsufficientBalance builds the business-rule error with the attempted
// quantity and the observed available balance, so an operator can
// diagnose without re-querying the ledger.
func InsufficientBalance(requested, available int) *Error {
	return Clone(ErrInsufficientBalance,
		fmt.Sprintf("insufficient balance: requested %d, available %d", requested, available))
}

// RefundExceedsConsumed builds the refund-cap error with both sides of
// the comparison.
func RefundExceedsConsumed(requested, consumed int) *Error {
	return Clone(ErrRefundExceedsConsumed,
		fmt.Sprintf("refund exceeds consumed quantity: requested %d, consumed %d", requested, consumed))
}
