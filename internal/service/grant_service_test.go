package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
)

func newGrantFixture(store *memStore) (*BalanceService, *GrantService) {
	balances := NewBalanceService(store, nil, 0, nil)
	return balances, NewGrantService(store, balances, nil, nil)
}

func TestGrantServiceCreate(t *testing.T) {
	store := newMemStore()
	balances, grants := newGrantFixture(store)

	grant, err := grants.Create(context.Background(), CreateGrantRequest{
		StudentID:   "stu-1",
		ServiceType: "tutoring",
		Source:      models.GrantSourceProduct,
		Quantity:    10,
		OriginItems: models.OriginItems{{ItemID: "item-1", Label: "Tutoring pack"}},
		CreatedBy:   "contract-service",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)
	assert.False(t, grant.CreatedAt.IsZero())

	balance, err := balances.GetBalance(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	assert.Equal(t, 10, balance.TotalQuantity)
	assert.Equal(t, 10, balance.AvailableQuantity)

	events := store.outboxEventsOfType(models.EventEntitlementGranted)
	require.Len(t, events, 1)
	assert.Equal(t, grant.ID, events[0].AggregateID)
}

func TestGrantServiceCreateValidation(t *testing.T) {
	store := newMemStore()
	_, grants := newGrantFixture(store)

	cases := []CreateGrantRequest{
		{ServiceType: "tutoring", Source: models.GrantSourceProduct, Quantity: 1, CreatedBy: "x"},
		{StudentID: "stu-1", Source: models.GrantSourceProduct, Quantity: 1, CreatedBy: "x"},
		{StudentID: "stu-1", ServiceType: "tutoring", Source: models.GrantSourceProduct, CreatedBy: "x"},
		{StudentID: "stu-1", ServiceType: "tutoring", Source: models.GrantSourceProduct, Quantity: -2, CreatedBy: "x"},
		{StudentID: "stu-1", ServiceType: "tutoring", Source: "scholarship", Quantity: 1, CreatedBy: "x"},
	}
	for _, req := range cases {
		_, err := grants.Create(context.Background(), req)
		require.Error(t, err)
	}
	assert.Empty(t, store.grants)
	assert.Empty(t, store.outbox)
}

func TestGrantServiceListByStudentOrdersBySourcePriority(t *testing.T) {
	store := newMemStore()
	_, grants := newGrantFixture(store)

	for _, source := range []models.GrantSource{
		models.GrantSourceCompensation,
		models.GrantSourceProduct,
		models.GrantSourcePromotion,
	} {
		_, err := grants.Create(context.Background(), CreateGrantRequest{
			StudentID: "stu-1", ServiceType: "tutoring", Source: source, Quantity: 1, CreatedBy: "x",
		})
		require.NoError(t, err)
	}

	listed, err := grants.ListByStudent(context.Background(), "stu-1", "tutoring")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, models.GrantSourceProduct, listed[0].Source)
	assert.Equal(t, models.GrantSourcePromotion, listed[1].Source)
	assert.Equal(t, models.GrantSourceCompensation, listed[2].Source)
}
