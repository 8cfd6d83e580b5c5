package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

func newHoldFixture(store *memStore) (*BalanceService, *HoldService) {
	balances := NewBalanceService(store, nil, 0, nil)
	return balances, NewHoldService(store, balances, nil, nil, nil, time.Hour, time.Minute)
}

func TestHoldServiceCreate(t *testing.T) {
	store := newMemStore()
	balances, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 3)

	hold, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID:   "stu-1",
		ServiceType: "tutoring",
		Quantity:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusActive, hold.Status)
	assert.Equal(t, 2, hold.Quantity)

	balance, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 2, balance.HeldQuantity)
	assert.Equal(t, 1, balance.AvailableQuantity)

	assert.Len(t, store.outboxEventsOfType(models.EventHoldCreated), 1)
}

func TestHoldServiceCreateDefaultsQuantity(t *testing.T) {
	store := newMemStore()
	_, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 1)

	hold, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID:   "stu-1",
		ServiceType: "tutoring",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hold.Quantity)
}

func TestHoldServiceCreateInsufficientBalance(t *testing.T) {
	store := newMemStore()
	_, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 1)

	_, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID:   "stu-1",
		ServiceType: "tutoring",
		Quantity:    2,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, appErr.Code)
	assert.Empty(t, store.holds)
}

func TestHoldServiceCancelIdempotent(t *testing.T) {
	store := newMemStore()
	balances, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 2)

	hold, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID: "stu-1", ServiceType: "tutoring", Quantity: 2,
	})
	require.NoError(t, err)

	cancelled, err := holds.Cancel(context.Background(), hold.ID, "student changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ClosedAt)

	balance, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.HeldQuantity)
	assert.Equal(t, 2, balance.AvailableQuantity)

	// second cancel is a no-op, not an error, and emits no second event
	again, err := holds.Cancel(context.Background(), hold.ID, "retry")
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusCancelled, again.Status)

	events := store.outboxEventsOfType(models.EventHoldCancelled)
	require.Len(t, events, 1)

	// the event payload carries the terminal status, not the pre-transition snapshot
	var published models.ServiceHold
	require.NoError(t, json.Unmarshal(events[0].Payload, &published))
	assert.Equal(t, models.HoldStatusCancelled, published.Status)
	assert.NotNil(t, published.ClosedAt)
}

func TestHoldServiceCancelNotFound(t *testing.T) {
	store := newMemStore()
	_, holds := newHoldFixture(store)

	_, err := holds.Cancel(context.Background(), "missing", "whatever")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestHoldServiceUpdateRelatedBooking(t *testing.T) {
	store := newMemStore()
	_, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 1)

	hold, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID: "stu-1", ServiceType: "tutoring", Quantity: 1,
	})
	require.NoError(t, err)
	require.Nil(t, hold.RelatedBookingID)

	updated, err := holds.UpdateRelatedBooking(context.Background(), hold.ID, "bkg-9")
	require.NoError(t, err)
	require.NotNil(t, updated.RelatedBookingID)
	assert.Equal(t, "bkg-9", *updated.RelatedBookingID)

	_, err = holds.UpdateRelatedBooking(context.Background(), hold.ID, "")
	require.Error(t, err)
}

func TestHoldServiceExpireStaleHolds(t *testing.T) {
	store := newMemStore()
	balances, holds := newHoldFixture(store)
	seedGrant(t, store, "stu-1", "tutoring", 3)

	stale := &models.ServiceHold{
		StudentID:   "stu-1",
		ServiceType: "tutoring",
		Quantity:    1,
		CreatedAt:   time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, store.CreateHold(context.Background(), stale))

	fresh, err := holds.Create(context.Background(), CreateHoldRequest{
		StudentID: "stu-1", ServiceType: "tutoring", Quantity: 1,
	})
	require.NoError(t, err)

	count, err := holds.ExpireStaleHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := store.GetHold(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusExpired, expired.Status)

	kept, err := store.GetHold(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusActive, kept.Status)

	balance, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 1, balance.HeldQuantity)

	assert.Len(t, store.outboxEventsOfType(models.EventHoldExpired), 1)

	// nothing left to expire
	count, err = holds.ExpireStaleHolds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
