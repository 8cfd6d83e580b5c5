package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// CreateGrantRequest describes a new entitlement grant. Grants arrive
// from contract activation or when an addon, promotion or compensation
// is applied; they are immutable afterwards.
type CreateGrantRequest struct {
	StudentID   string             `json:"student_id" validate:"required"`
	ServiceType string             `json:"service_type" validate:"required"`
	Source      models.GrantSource `json:"source" validate:"required"`
	Quantity    int                `json:"quantity" validate:"required,gt=0,lte=99999"`
	OriginItems models.OriginItems `json:"origin_items,omitempty"`
	CreatedBy   string             `json:"created_by" validate:"required"`
}

// GrantService persists entitlement grants and emits grant events.
type GrantService struct {
	store     repository.Store
	balances  *BalanceService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGrantService creates a service instance.
func NewGrantService(store repository.Store, balances *BalanceService, validate *validator.Validate, logger *zap.Logger) *GrantService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrantService{store: store, balances: balances, validator: validate, logger: logger}
}

// Create inserts a grant and an entitlement.granted outbox row in one
// transaction.
func (s *GrantService) Create(ctx context.Context, req CreateGrantRequest) (*models.EntitlementGrant, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	if !req.Source.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grant source")
	}

	grant := &models.EntitlementGrant{
		StudentID:   req.StudentID,
		ServiceType: req.ServiceType,
		Source:      req.Source,
		Quantity:    req.Quantity,
		OriginItems: req.OriginItems,
		CreatedBy:   req.CreatedBy,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.CreateGrant(ctx, grant); err != nil {
			return err
		}
		return appendOutboxEvent(ctx, tx, models.EventEntitlementGranted, aggregateGrant, grant.ID, grant)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grant")
	}

	s.balances.Invalidate(ctx, grant.StudentID)
	s.logger.Info("grant created",
		zap.String("grant_id", grant.ID),
		zap.String("student_id", grant.StudentID),
		zap.String("service_type", grant.ServiceType),
		zap.String("source", string(grant.Source)),
		zap.Int("quantity", grant.Quantity))
	return grant, nil
}

// ListByStudent returns the student's grants ordered by source
// priority, the same order consumption attribution uses.
func (s *GrantService) ListByStudent(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error) {
	grants, err := s.store.ListGrants(ctx, studentID, serviceType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grants")
	}
	return SortGrantsByPriority(grants), nil
}
