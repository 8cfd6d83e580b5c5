package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

const systemActor = "system:event-consumer"

// Consumer outcomes for metrics.
const (
	outcomeApplied = "applied"
	outcomeNoop    = "noop"
	outcomeError   = "error"
)

// ConsumerService applies inbound domain events to the ledger. Every
// handler is idempotent under at-least-once delivery: re-delivery of an
// already-applied event is a logged no-op. Unexpected errors are
// returned so the transport can redeliver.
type ConsumerService struct {
	store    repository.Store
	ledger   *LedgerService
	holds    *HoldService
	balances *BalanceService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewConsumerService creates a service instance.
func NewConsumerService(store repository.Store, ledger *LedgerService, holds *HoldService, balances *BalanceService, metrics *MetricsService, logger *zap.Logger) *ConsumerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumerService{store: store, ledger: ledger, holds: holds, balances: balances, metrics: metrics, logger: logger}
}

// HandleEvent decodes and dispatches one inbound event. Unknown event
// types are an error so misrouted events surface instead of vanishing.
func (s *ConsumerService) HandleEvent(ctx context.Context, eventType string, raw json.RawMessage) error {
	payload, err := models.DecodeEventPayload(eventType, raw)
	if err != nil {
		s.metrics.RecordEventConsumed(eventType, outcomeError)
		return err
	}

	var outcome string
	switch p := payload.(type) {
	case models.SessionCompletedPayload:
		outcome, err = s.handleSessionCompleted(ctx, p)
	case models.SessionCancelledPayload:
		outcome, err = s.handleSessionCancelled(ctx, p)
	case models.PaymentSucceededPayload:
		outcome, err = s.handlePaymentSucceeded(ctx, p)
	case models.JobAppStatusChangedPayload:
		outcome, err = s.handleJobAppStatusChanged(ctx, p)
	case models.JobAppRolledBackPayload:
		outcome, err = s.handleJobAppRolledBack(ctx, p)
	default:
		s.metrics.RecordEventConsumed(eventType, outcomeError)
		return errors.New("no handler for event type " + eventType)
	}
	if err != nil {
		s.metrics.RecordEventConsumed(eventType, outcomeError)
		return err
	}
	s.metrics.RecordEventConsumed(eventType, outcome)
	return nil
}

// handleSessionCompleted permanently consumes the entitlement reserved
// for the booking. Hold release and consumption share one transaction.
// Re-delivery detection: a booking that already has net consumption is
// a no-op.
func (s *ConsumerService) handleSessionCompleted(ctx context.Context, p models.SessionCompletedPayload) (string, error) {
	createdBy := p.CompletedBy
	if createdBy == "" {
		createdBy = systemActor
	}
	return s.consumeForBooking(ctx, p.StudentID, p.ServiceType, p.BookingID, 1, createdBy)
}

// consumeForBooking is the shared settle path for session.completed and
// placement milestones.
func (s *ConsumerService) consumeForBooking(ctx context.Context, studentID, serviceType, bookingID string, quantity int, createdBy string) (string, error) {
	if studentID == "" || serviceType == "" || bookingID == "" {
		return outcomeError, appErrors.Clone(appErrors.ErrValidation, "event payload missing identifiers")
	}

	outcome := outcomeApplied
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		consumed, err := tx.NetConsumedForBooking(ctx, studentID, serviceType, bookingID)
		if err != nil {
			return err
		}
		if consumed > 0 {
			s.logger.Warn("booking already settled, skipping",
				zap.String("booking_id", bookingID),
				zap.Int("net_consumed", consumed))
			outcome = outcomeNoop
			return nil
		}

		holds, err := tx.ActiveHoldsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		var holdID *string
		switch {
		case len(holds) == 0:
			s.logger.Warn("no active hold for completed booking, consuming directly",
				zap.String("booking_id", bookingID))
		case len(holds) > 1:
			s.logger.Warn("multiple active holds for booking, releasing the oldest",
				zap.String("booking_id", bookingID),
				zap.Int("active_holds", len(holds)))
			fallthrough
		default:
			hold := holds[0]
			released, err := s.holds.releaseTx(ctx, tx, &hold, "session completed")
			if err != nil {
				return err
			}
			if released {
				holdID = &hold.ID
			}
		}

		bID := bookingID
		_, err = s.ledger.consumeTx(ctx, tx, ConsumptionRequest{
			StudentID:        studentID,
			ServiceType:      serviceType,
			Quantity:         quantity,
			RelatedBookingID: &bID,
			RelatedHoldID:    holdID,
			CreatedBy:        createdBy,
		})
		return err
	})
	if err != nil {
		return outcomeError, err
	}

	s.balances.Invalidate(ctx, studentID)
	return outcome, nil
}

// handleSessionCancelled returns the reserved balance by cancelling the
// booking's active hold. No ledger entry. Unknown or already-closed
// holds are a no-op.
func (s *ConsumerService) handleSessionCancelled(ctx context.Context, p models.SessionCancelledPayload) (string, error) {
	if p.BookingID == "" {
		return outcomeError, appErrors.Clone(appErrors.ErrValidation, "event payload missing booking_id")
	}

	holds, err := s.store.ActiveHoldsByBooking(ctx, p.BookingID)
	if err != nil {
		return outcomeError, err
	}
	if len(holds) == 0 {
		s.logger.Warn("no active hold for cancelled booking", zap.String("booking_id", p.BookingID))
		return outcomeNoop, nil
	}
	if len(holds) > 1 {
		s.logger.Warn("multiple active holds for cancelled booking",
			zap.String("booking_id", p.BookingID),
			zap.Int("active_holds", len(holds)))
	}

	reason := p.Reason
	if reason == "" {
		reason = "session cancelled"
	}
	for i := range holds {
		if _, err := s.holds.Cancel(ctx, holds[i].ID, reason); err != nil {
			return outcomeError, err
		}
	}
	return outcomeApplied, nil
}

// handlePaymentSucceeded activates a signed contract. Re-delivery
// against an already-active contract is a silent no-op; an unknown
// contract is a warning, since payment events can outrun replication.
func (s *ConsumerService) handlePaymentSucceeded(ctx context.Context, p models.PaymentSucceededPayload) (string, error) {
	if p.ContractID == "" {
		return outcomeError, appErrors.Clone(appErrors.ErrValidation, "event payload missing contract_id")
	}

	if _, err := s.store.GetContract(ctx, p.ContractID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("payment for unknown contract", zap.String("contract_id", p.ContractID))
			return outcomeNoop, nil
		}
		return outcomeError, err
	}

	activated, err := s.store.ActivateContract(ctx, p.ContractID, time.Now().UTC())
	if err != nil {
		return outcomeError, err
	}
	if !activated {
		s.logger.Info("contract not in signed state, activation skipped",
			zap.String("contract_id", p.ContractID))
		return outcomeNoop, nil
	}

	s.logger.Info("contract activated",
		zap.String("contract_id", p.ContractID),
		zap.String("payment_id", p.PaymentID))
	return outcomeApplied, nil
}

// handleJobAppStatusChanged settles a placement milestone through the
// same hold-release path as session completion.
func (s *ConsumerService) handleJobAppStatusChanged(ctx context.Context, p models.JobAppStatusChangedPayload) (string, error) {
	return s.consumeForBooking(ctx, p.StudentID, p.ServiceType, p.BookingID, 1, systemActor)
}

// handleJobAppRolledBack refunds the consumption recorded for a
// placement booking. The refund cap makes repeated rollbacks safe.
func (s *ConsumerService) handleJobAppRolledBack(ctx context.Context, p models.JobAppRolledBackPayload) (string, error) {
	if p.StudentID == "" || p.ServiceType == "" || p.BookingID == "" {
		return outcomeError, appErrors.Clone(appErrors.ErrValidation, "event payload missing identifiers")
	}
	quantity := p.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	reason := p.Reason
	if reason == "" {
		reason = "job application rolled back"
	}

	_, err := s.ledger.RecordRefund(ctx, RefundRequest{
		StudentID:        p.StudentID,
		ServiceType:      p.ServiceType,
		Quantity:         quantity,
		RelatedBookingID: p.BookingID,
		Reason:           &reason,
		CreatedBy:        systemActor,
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrRefundExceedsConsumed.Code {
			s.logger.Warn("rollback already refunded, skipping",
				zap.String("booking_id", p.BookingID))
			return outcomeNoop, nil
		}
		return outcomeError, err
	}
	return outcomeApplied, nil
}
