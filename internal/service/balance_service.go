package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
)

// BalanceService exposes derived balances with an optional read-side
// cache. Balances are never persisted; the store is the only truth.
type BalanceService struct {
	store    repository.Store
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewBalanceService constructs a balance service.
func NewBalanceService(store repository.Store, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{store: store, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// GetBalance returns the current balance for one (student, serviceType)
// key, cache-aside. A student with no grants gets an all-zero balance,
// not an error.
func (s *BalanceService) GetBalance(ctx context.Context, studentID, serviceType string) (models.Balance, error) {
	key := repository.BalanceCacheKey(studentID, serviceType)

	var cached models.Balance
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	balance, err := s.computeBalance(ctx, s.store, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}

	if err := s.cache.Set(ctx, key, balance, s.cacheTTL); err != nil {
		s.logger.Warn("balance cache write failed",
			zap.String("student_id", studentID),
			zap.String("service_type", serviceType),
			zap.Error(err))
	}
	return balance, nil
}

// ListBalances returns one balance per service type the student holds
// grants for, sorted by service type for stable output.
func (s *BalanceService) ListBalances(ctx context.Context, studentID string) ([]models.Balance, error) {
	grants, err := s.store.ListGrants(ctx, studentID, "")
	if err != nil {
		return nil, err
	}

	serviceTypes := make([]string, 0)
	seen := make(map[string]bool)
	for _, grant := range grants {
		if !seen[grant.ServiceType] {
			seen[grant.ServiceType] = true
			serviceTypes = append(serviceTypes, grant.ServiceType)
		}
	}
	sort.Strings(serviceTypes)

	balances := make([]models.Balance, 0, len(serviceTypes))
	for _, serviceType := range serviceTypes {
		balance, err := s.GetBalance(ctx, studentID, serviceType)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// Invalidate drops all cached balances for a student. Called after any
// write that changes the student's ledger, grants or holds.
func (s *BalanceService) Invalidate(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, repository.BalanceCachePattern(studentID)); err != nil {
		s.logger.Warn("balance cache invalidation failed",
			zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *BalanceService) computeBalance(ctx context.Context, store repository.Store, studentID, serviceType string) (models.Balance, error) {
	grants, err := store.ListGrants(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	ledgerNet, err := store.SumLedgerNet(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	holds, err := store.ActiveHolds(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	return ComputeBalance(studentID, serviceType, grants, ledgerNet, holds), nil
}

// balanceForUpdate recomputes a balance inside an open transaction with
// the student's grant rows locked, serializing concurrent writers on
// the same key. Must only be called from within Store.WithTx.
func balanceForUpdate(ctx context.Context, tx repository.Store, studentID, serviceType string) (models.Balance, error) {
	grants, err := tx.GrantsForUpdate(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	ledgerNet, err := tx.SumLedgerNet(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	holds, err := tx.ActiveHolds(ctx, studentID, serviceType)
	if err != nil {
		return models.Balance{}, err
	}
	return ComputeBalance(studentID, serviceType, grants, ledgerNet, holds), nil
}
