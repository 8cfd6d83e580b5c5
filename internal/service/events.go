package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
)

// Aggregate types stamped on outbox rows.
const (
	aggregateGrant       = "entitlement_grant"
	aggregateLedgerEntry = "ledger_entry"
	aggregateHold        = "service_hold"
)

// appendOutboxEvent serializes the payload and writes the outbox row on
// the provided store, which must be the same transaction as the
// mutation the event describes.
func appendOutboxEvent(ctx context.Context, tx repository.Store, eventType, aggregateType, aggregateID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       raw,
	})
}
