package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// ConsumptionRequest describes a balance-consuming operation.
type ConsumptionRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	ServiceType      string  `json:"service_type" validate:"required"`
	Quantity         int     `json:"quantity" validate:"required,gt=0,lte=99999"`
	RelatedBookingID *string `json:"related_booking_id,omitempty"`
	RelatedHoldID    *string `json:"related_hold_id,omitempty"`
	BookingSource    *string `json:"booking_source,omitempty"`
	CreatedBy        string  `json:"created_by" validate:"required"`
}

// RefundRequest returns previously consumed quantity for a booking.
type RefundRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	ServiceType      string  `json:"service_type" validate:"required"`
	Quantity         int     `json:"quantity" validate:"required,gt=0,lte=99999"`
	RelatedBookingID string  `json:"related_booking_id" validate:"required"`
	BookingSource    *string `json:"booking_source,omitempty"`
	Reason           *string `json:"reason,omitempty"`
	CreatedBy        string  `json:"created_by" validate:"required"`
}

// AdjustmentRequest is a manual, signed correction. OperationType
// defaults to adjustment; initial and expiration are accepted for
// migration backfills and entitlement-expiry corrections.
type AdjustmentRequest struct {
	StudentID      string               `json:"student_id" validate:"required"`
	ServiceType    string               `json:"service_type" validate:"required"`
	QuantityChange int                  `json:"quantity_change" validate:"required"`
	OperationType  models.OperationType `json:"operation_type,omitempty"`
	Reason         string               `json:"reason" validate:"required"`
	RelatedEntryID *string              `json:"related_entry_id,omitempty"`
	CreatedBy      string               `json:"created_by" validate:"required"`
}

// LedgerService is the only writer of ledger entries. Every write locks
// the student's grant rows, recomputes the balance and re-checks the
// invariants inside the transaction, then appends the entry and its
// outbox row atomically.
type LedgerService struct {
	store     repository.Store
	balances  *BalanceService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLedgerService creates a service instance.
func NewLedgerService(store repository.Store, balances *BalanceService, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{store: store, balances: balances, validator: validate, logger: logger}
}

// RecordConsumption appends a negative entry after verifying available
// balance. Fails with InsufficientBalance when quantity exceeds the
// available quantity observed inside the transaction.
func (s *LedgerService) RecordConsumption(ctx context.Context, req ConsumptionRequest) (*models.LedgerEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consumption payload")
	}

	var entry *models.LedgerEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var txErr error
		entry, txErr = s.consumeTx(ctx, tx, req)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, req.StudentID)
	return entry, nil
}

// consumeTx performs the consumption inside an already-open transaction
// so hold release and consumption commit or roll back together.
func (s *LedgerService) consumeTx(ctx context.Context, tx repository.Store, req ConsumptionRequest) (*models.LedgerEntry, error) {
	balance, err := balanceForUpdate(ctx, tx, req.StudentID, req.ServiceType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute balance")
	}
	if req.Quantity > balance.AvailableQuantity {
		return nil, appErrors.InsufficientBalance(req.Quantity, balance.AvailableQuantity)
	}

	grants, err := tx.ListGrants(ctx, req.StudentID, req.ServiceType)
	if err == nil {
		if attributed := AttributeConsumption(grants, balance.ConsumedQuantity); attributed != nil {
			s.logger.Debug("consumption attributed",
				zap.String("student_id", req.StudentID),
				zap.String("service_type", req.ServiceType),
				zap.String("grant_id", attributed.ID),
				zap.String("source", string(attributed.Source)))
		}
	}

	entry := &models.LedgerEntry{
		StudentID:        req.StudentID,
		ServiceType:      req.ServiceType,
		QuantityChange:   -req.Quantity,
		OperationType:    models.OperationConsumption,
		BalanceAfter:     balance.AvailableQuantity - req.Quantity,
		RelatedBookingID: req.RelatedBookingID,
		RelatedHoldID:    req.RelatedHoldID,
		BookingSource:    req.BookingSource,
		CreatedBy:        req.CreatedBy,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entry")
	}
	if err := appendOutboxEvent(ctx, tx, models.EventEntitlementConsumed, aggregateLedgerEntry, entry.ID, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append outbox event")
	}
	return entry, nil
}

// RecordRefund appends a positive entry capped by the net consumed
// quantity for the booking, so repeated refunds can never overshoot.
func (s *LedgerService) RecordRefund(ctx context.Context, req RefundRequest) (*models.LedgerEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refund payload")
	}

	var entry *models.LedgerEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		balance, err := balanceForUpdate(ctx, tx, req.StudentID, req.ServiceType)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute balance")
		}
		consumed, err := tx.NetConsumedForBooking(ctx, req.StudentID, req.ServiceType, req.RelatedBookingID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum booking consumption")
		}
		if req.Quantity > consumed {
			return appErrors.RefundExceedsConsumed(req.Quantity, consumed)
		}

		bookingID := req.RelatedBookingID
		entry = &models.LedgerEntry{
			StudentID:        req.StudentID,
			ServiceType:      req.ServiceType,
			QuantityChange:   req.Quantity,
			OperationType:    models.OperationRefund,
			BalanceAfter:     balance.AvailableQuantity + req.Quantity,
			RelatedBookingID: &bookingID,
			BookingSource:    req.BookingSource,
			Reason:           req.Reason,
			CreatedBy:        req.CreatedBy,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entry")
		}
		return appendOutboxEvent(ctx, tx, models.EventEntitlementRefunded, aggregateLedgerEntry, entry.ID, entry)
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, req.StudentID)
	return entry, nil
}

// RecordAdjustment appends a signed manual correction. Negative
// adjustments must not push available below zero; positive ones are
// always allowed.
func (s *LedgerService) RecordAdjustment(ctx context.Context, req AdjustmentRequest) (*models.LedgerEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}
	if req.QuantityChange == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity_change must be non-zero")
	}
	if req.QuantityChange > 99999 || req.QuantityChange < -99999 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity_change out of range")
	}
	opType := req.OperationType
	if opType == "" {
		opType = models.OperationAdjustment
	}
	switch opType {
	case models.OperationAdjustment, models.OperationInitial, models.OperationExpiration:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "operation_type must be adjustment, initial or expiration")
	}

	var entry *models.LedgerEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		balance, err := balanceForUpdate(ctx, tx, req.StudentID, req.ServiceType)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute balance")
		}
		if req.QuantityChange < 0 && -req.QuantityChange > balance.AvailableQuantity {
			return appErrors.InsufficientBalance(-req.QuantityChange, balance.AvailableQuantity)
		}

		reason := req.Reason
		entry = &models.LedgerEntry{
			StudentID:      req.StudentID,
			ServiceType:    req.ServiceType,
			QuantityChange: req.QuantityChange,
			OperationType:  opType,
			BalanceAfter:   balance.AvailableQuantity + req.QuantityChange,
			RelatedEntryID: req.RelatedEntryID,
			Reason:         &reason,
			CreatedBy:      req.CreatedBy,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entry")
		}
		return appendOutboxEvent(ctx, tx, models.EventEntitlementAdjusted, aggregateLedgerEntry, entry.ID, entry)
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, req.StudentID)
	return entry, nil
}

// Get returns one ledger entry.
func (s *LedgerService) Get(ctx context.Context, id string) (*models.LedgerEntry, error) {
	entry, err := s.store.GetLedgerEntry(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entry")
	}
	return entry, nil
}

// List returns filtered, paginated entries with the total count.
func (s *LedgerService) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	entries, total, err := s.store.ListLedgerEntries(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger entries")
	}
	return entries, total, nil
}
