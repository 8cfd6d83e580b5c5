package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// cacheRepoStub is an in-memory CacheRepository for cache-aside tests.
type cacheRepoStub struct {
	values map[string]interface{}
	gets   int
	sets   int
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	value, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if balance, ok := dest.(*models.Balance); ok {
		*balance = value.(models.Balance)
	}
	return nil
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	if c.values == nil {
		c.values = make(map[string]interface{})
	}
	if balance, ok := value.(models.Balance); ok {
		c.values[key] = balance
	}
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.values = nil
	return nil
}

func TestBalanceServiceZeroBalanceForUnknownStudent(t *testing.T) {
	store := newMemStore()
	balances := NewBalanceService(store, nil, 0, nil)

	balance, err := balances.GetBalance(context.Background(), "stranger", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, models.Balance{StudentID: "stranger", ServiceType: "tutoring"}, balance)
}

func TestBalanceServiceListBalancesGroupsByServiceType(t *testing.T) {
	store := newMemStore()
	balances := NewBalanceService(store, nil, 0, nil)
	seedGrant(t, store, "stu-1", "tutoring", 3)
	seedGrant(t, store, "stu-1", "tutoring", 2)
	seedGrant(t, store, "stu-1", "placement", 1)

	list, err := balances.ListBalances(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "placement", list[0].ServiceType)
	assert.Equal(t, 1, list[0].TotalQuantity)
	assert.Equal(t, "tutoring", list[1].ServiceType)
	assert.Equal(t, 5, list[1].TotalQuantity)
}

func TestBalanceServiceCacheAside(t *testing.T) {
	store := newMemStore()
	repo := &cacheRepoStub{}
	cacheSvc := NewCacheService(repo, nil, time.Minute, nil, true)
	balances := NewBalanceService(store, cacheSvc, time.Minute, nil)
	ledger := NewLedgerService(store, balances, nil, nil)
	seedGrant(t, store, "stu-1", "tutoring", 5)

	first, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 5, first.AvailableQuantity)
	assert.Equal(t, 1, repo.sets)

	// second read served from cache
	second, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.sets)

	// a write invalidates and the next read recomputes
	_, err = ledger.RecordConsumption(context.Background(), ConsumptionRequest{
		StudentID: "stu-1", ServiceType: "tutoring", Quantity: 2, CreatedBy: "test",
	})
	require.NoError(t, err)

	third, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 3, third.AvailableQuantity)
	assert.Equal(t, 2, repo.sets)
}
