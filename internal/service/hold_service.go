package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// CreateHoldRequest opens a soft reservation against available balance.
type CreateHoldRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	ServiceType      string  `json:"service_type" validate:"required"`
	Quantity         int     `json:"quantity" validate:"omitempty,gte=1,lte=99999"`
	RelatedBookingID *string `json:"related_booking_id,omitempty"`
	Reason           *string `json:"reason,omitempty"`
}

// HoldService owns the hold state machine. Transitions are
// compare-and-set updates on the active status, so a second release or
// cancel of the same hold is a logged no-op, never an error.
type HoldService struct {
	store     repository.Store
	balances  *BalanceService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	ttl           time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewHoldService creates a service instance.
func NewHoldService(store repository.Store, balances *BalanceService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, ttl, sweepInterval time.Duration) *HoldService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &HoldService{
		store:         store,
		balances:      balances,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		ttl:           ttl,
		sweepInterval: sweepInterval,
	}
}

// Create inserts an active hold after checking available balance inside
// the transaction. Available already excludes other active holds.
func (s *HoldService) Create(ctx context.Context, req CreateHoldRequest) (*models.ServiceHold, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid hold payload")
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	hold := &models.ServiceHold{
		StudentID:        req.StudentID,
		ServiceType:      req.ServiceType,
		Quantity:         quantity,
		RelatedBookingID: req.RelatedBookingID,
		Reason:           req.Reason,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		balance, err := balanceForUpdate(ctx, tx, req.StudentID, req.ServiceType)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute balance")
		}
		if quantity > balance.AvailableQuantity {
			return appErrors.InsufficientBalance(quantity, balance.AvailableQuantity)
		}
		if req.RelatedBookingID != nil {
			s.warnDuplicateBookingHolds(ctx, tx, *req.RelatedBookingID)
		}
		if err := tx.CreateHold(ctx, hold); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create hold")
		}
		return appendOutboxEvent(ctx, tx, models.EventHoldCreated, aggregateHold, hold.ID, hold)
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, req.StudentID)
	return hold, nil
}

// Get returns one hold.
func (s *HoldService) Get(ctx context.Context, id string) (*models.ServiceHold, error) {
	hold, err := s.store.GetHold(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hold not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hold")
	}
	return hold, nil
}

// UpdateRelatedBooking late-binds the booking identifier once the
// downstream booking exists. No state transition.
func (s *HoldService) UpdateRelatedBooking(ctx context.Context, holdID, bookingID string) (*models.ServiceHold, error) {
	if bookingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking_id is required")
	}
	if _, err := s.Get(ctx, holdID); err != nil {
		return nil, err
	}

	s.warnDuplicateBookingHolds(ctx, s.store, bookingID)

	if _, err := s.store.SetHoldBooking(ctx, holdID, bookingID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind booking")
	}
	return s.Get(ctx, holdID)
}

// Cancel transitions active -> cancelled and returns balance to
// available. No ledger entry is written. Cancelling a hold that is
// already terminal is a no-op.
func (s *HoldService) Cancel(ctx context.Context, holdID, reason string) (*models.ServiceHold, error) {
	hold, err := s.Get(ctx, holdID)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		transitioned, err := tx.TransitionHold(ctx, holdID, models.HoldStatusActive, models.HoldStatusCancelled, reason)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel hold")
		}
		if !transitioned {
			s.logger.Warn("hold not active, cancel skipped",
				zap.String("hold_id", holdID),
				zap.String("status", string(hold.Status)))
			return nil
		}
		// re-read so the event carries the terminal status
		cancelled, err := tx.GetHold(ctx, holdID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cancelled hold")
		}
		return appendOutboxEvent(ctx, tx, models.EventHoldCancelled, aggregateHold, holdID, cancelled)
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, hold.StudentID)
	return s.Get(ctx, holdID)
}

// releaseTx transitions active -> released inside the caller's
// transaction, so release and its paired consumption are atomic.
// Returns false when the hold was not active.
func (s *HoldService) releaseTx(ctx context.Context, tx repository.Store, hold *models.ServiceHold, reason string) (bool, error) {
	transitioned, err := tx.TransitionHold(ctx, hold.ID, models.HoldStatusActive, models.HoldStatusReleased, reason)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release hold")
	}
	if !transitioned {
		s.logger.Warn("hold not active, release skipped", zap.String("hold_id", hold.ID))
		return false, nil
	}
	// re-read so the event carries the terminal status
	released, err := tx.GetHold(ctx, hold.ID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load released hold")
	}
	if err := appendOutboxEvent(ctx, tx, models.EventHoldReleased, aggregateHold, hold.ID, released); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireStaleHolds expires active holds older than the TTL and emits a
// hold.expired event per hold. Same balance effect as cancellation.
func (s *HoldService) ExpireStaleHolds(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	var expired []models.ServiceHold
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var txErr error
		expired, txErr = tx.ExpireHoldsBefore(ctx, cutoff)
		if txErr != nil {
			return txErr
		}
		for i := range expired {
			if err := appendOutboxEvent(ctx, tx, models.EventHoldExpired, aggregateHold, expired[i].ID, expired[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire holds")
	}

	for i := range expired {
		s.balances.Invalidate(ctx, expired[i].StudentID)
	}
	if len(expired) > 0 {
		s.metrics.RecordHoldsExpired(len(expired))
		s.logger.Info("stale holds expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// StartSweeper launches the periodic stale-hold sweeper.
func (s *HoldService) StartSweeper(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExpireStaleHolds(sweepCtx); err != nil {
					s.logger.Error("hold sweep failed", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("hold sweeper started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.sweepInterval))
}

// StopSweeper stops the sweeper and waits for it to exit.
func (s *HoldService) StopSweeper() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.started = false
	s.mu.Unlock()
	<-done
	s.logger.Info("hold sweeper stopped")
}

// warnDuplicateBookingHolds logs when a booking already has an active
// hold. Upstream duplicate events make this possible; it is a warning,
// not a failure.
func (s *HoldService) warnDuplicateBookingHolds(ctx context.Context, store repository.Store, bookingID string) {
	holds, err := store.ActiveHoldsByBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn("duplicate hold check failed", zap.String("booking_id", bookingID), zap.Error(err))
		return
	}
	if len(holds) > 0 {
		s.logger.Warn("booking already has an active hold",
			zap.String("booking_id", bookingID),
			zap.Int("active_holds", len(holds)))
	}
}
