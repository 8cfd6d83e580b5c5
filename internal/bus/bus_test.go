package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/entitlement-api/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.OutboxEvent
}

func (r *recorder) handle(ctx context.Context, event models.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := New(Config{Workers: 1})
	rec := &recorder{}
	bus.Subscribe("hold.created", rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	event := models.OutboxEvent{ID: "evt-1", EventType: "hold.created", Payload: []byte(`{}`)}
	require.NoError(t, bus.Publish(context.Background(), event))

	waitFor(t, func() bool { return rec.count() == 1 })
	rec.mu.Lock()
	assert.Equal(t, "evt-1", rec.events[0].ID)
	rec.mu.Unlock()
}

func TestBusFansOutToAllHandlers(t *testing.T) {
	bus := New(Config{Workers: 1})
	first := &recorder{}
	second := &recorder{}
	bus.Subscribe("entitlement.consumed", first.handle)
	bus.Subscribe("entitlement.consumed", second.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	require.NoError(t, bus.Publish(context.Background(), models.OutboxEvent{
		ID: "evt-2", EventType: "entitlement.consumed",
	}))

	waitFor(t, func() bool { return first.count() == 1 && second.count() == 1 })
}

func TestBusIgnoresUnsubscribedEventTypes(t *testing.T) {
	bus := New(Config{Workers: 1})
	rec := &recorder{}
	bus.Subscribe("hold.created", rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	// no subscriber for this type: accepted and dropped
	require.NoError(t, bus.Publish(context.Background(), models.OutboxEvent{
		ID: "evt-3", EventType: "entitlement.refunded",
	}))
	assert.Zero(t, rec.count())
}

func TestBusRetriesFailingHandler(t *testing.T) {
	bus := New(Config{Workers: 1, MaxRetries: 2})
	var mu sync.Mutex
	attempts := 0
	bus.Subscribe("hold.expired", func(ctx context.Context, event models.OutboxEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	require.NoError(t, bus.Publish(context.Background(), models.OutboxEvent{
		ID: "evt-4", EventType: "hold.expired",
	}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	})
}

func TestBusPublishBeforeStartFails(t *testing.T) {
	bus := New(Config{Workers: 1})
	bus.Subscribe("hold.created", (&recorder{}).handle)

	err := bus.Publish(context.Background(), models.OutboxEvent{
		ID: "evt-5", EventType: "hold.created",
	})
	require.Error(t, err)
}
