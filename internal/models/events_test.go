package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventPayload(t *testing.T) {
	payload, err := DecodeEventPayload(EventSessionCompleted, json.RawMessage(
		`{"booking_id":"bkg-1","student_id":"stu-1","service_type":"tutoring"}`))
	require.NoError(t, err)
	completed, ok := payload.(SessionCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, "bkg-1", completed.BookingID)
	assert.Equal(t, EventSessionCompleted, completed.EventType())

	payload, err = DecodeEventPayload(EventJobAppStatusRolledBack, json.RawMessage(
		`{"booking_id":"bkg-2","student_id":"stu-1","service_type":"placement","quantity":2}`))
	require.NoError(t, err)
	rolledBack, ok := payload.(JobAppRolledBackPayload)
	require.True(t, ok)
	assert.Equal(t, 2, rolledBack.Quantity)
}

func TestDecodeEventPayloadUnknownType(t *testing.T) {
	_, err := DecodeEventPayload("invoice.created", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestDecodeEventPayloadMalformed(t *testing.T) {
	_, err := DecodeEventPayload(EventPaymentSucceeded, json.RawMessage(`{`))
	require.Error(t, err)
}

func TestHoldStatusTerminal(t *testing.T) {
	assert.False(t, HoldStatusActive.Terminal())
	assert.True(t, HoldStatusReleased.Terminal())
	assert.True(t, HoldStatusCancelled.Terminal())
	assert.True(t, HoldStatusExpired.Terminal())
}

func TestGrantSourceRank(t *testing.T) {
	assert.Greater(t, GrantSourceProduct.Rank(), GrantSourceAddon.Rank())
	assert.Greater(t, GrantSourceAddon.Rank(), GrantSourcePromotion.Rank())
	assert.Greater(t, GrantSourcePromotion.Rank(), GrantSourceCompensation.Rank())
	assert.True(t, GrantSourceProduct.Valid())
	assert.False(t, GrantSource("scholarship").Valid())
}

func TestOriginItemsRoundTrip(t *testing.T) {
	items := OriginItems{{ItemID: "item-1", SnapshotID: "snap-1", Label: "Tutoring pack"}}

	value, err := items.Value()
	require.NoError(t, err)

	var scanned OriginItems
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, items, scanned)

	var empty OriginItems
	nilValue, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), nilValue)

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}
