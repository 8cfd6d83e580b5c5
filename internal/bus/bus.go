package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/pkg/jobs"
)

// Handler processes one delivered event.
type Handler func(ctx context.Context, event models.OutboxEvent) error

// Bus is an in-process event transport backed by the worker queue.
// Publish hands the event to the queue and returns; subscriber failures
// are retried by the queue, not surfaced to the publisher. Subscribers
// therefore see at-least-once delivery and must be idempotent.
type Bus struct {
	queue  *jobs.Queue
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// Config tunes the dispatch workers.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	Logger     *zap.Logger
}

// New builds a bus. Call Start before publishing.
func New(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	b := &Bus{
		logger:   cfg.Logger,
		handlers: make(map[string][]Handler),
	}
	b.queue = jobs.NewQueue("event-bus", b.dispatch, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     cfg.Logger,
	})
	return b
}

// Subscribe registers a handler for an event type. Must be called
// before Start; subscriptions are not synchronized against dispatch.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Start launches the dispatch workers.
func (b *Bus) Start(ctx context.Context) {
	b.queue.Start(ctx)
}

// Stop drains the workers.
func (b *Bus) Stop() {
	b.queue.Stop()
}

// Publish enqueues the event for asynchronous dispatch. An error means
// the event was not accepted and the caller should retry later.
func (b *Bus) Publish(ctx context.Context, event models.OutboxEvent) error {
	b.mu.RLock()
	subscribed := len(b.handlers[event.EventType]) > 0
	b.mu.RUnlock()
	if !subscribed {
		b.logger.Debug("no subscribers for event type",
			zap.String("event_type", event.EventType),
			zap.String("event_id", event.ID))
		return nil
	}
	return b.queue.Enqueue(jobs.Job{
		ID:      event.ID,
		Type:    event.EventType,
		Payload: event,
	})
}

func (b *Bus) dispatch(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.OutboxEvent)
	if !ok {
		return fmt.Errorf("unexpected bus payload type %T", job.Payload)
	}

	b.mu.RLock()
	handlers := b.handlers[event.EventType]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return fmt.Errorf("handle %s event %s: %w", event.EventType, event.ID, err)
		}
	}
	return nil
}
