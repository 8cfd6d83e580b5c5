package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
)

// EventTransport delivers one published outbox event downstream.
// Delivery is at-least-once; consumers are responsible for idempotency.
type EventTransport interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// PublisherConfig tunes the outbox daemon.
type PublisherConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	RetryWindow   time.Duration
	RetentionDays int
	LockKey       int64
}

// OutboxPublisher is the background daemon that drains the outbox. Only
// one instance cluster-wide publishes at a time, guarded by a Postgres
// advisory lock held on a dedicated connection. A crashed holder's lock
// is released with its database session, so no application lease or TTL
// exists on top.
type OutboxPublisher struct {
	store     repository.Store
	transport EventTransport
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       PublisherConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewOutboxPublisher creates the daemon.
func NewOutboxPublisher(store repository.Store, transport EventTransport, metrics *MetricsService, logger *zap.Logger, cfg PublisherConfig) *OutboxPublisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxPublisher{
		store:     store,
		transport: transport,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the polling loop.
func (p *OutboxPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := p.ProcessPendingEvents(runCtx); err != nil {
					p.logger.Error("outbox cycle failed", zap.Error(err))
				}
			}
		}
	}()
	p.logger.Info("outbox publisher started",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int64("lock_key", p.cfg.LockKey))
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (p *OutboxPublisher) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.started = false
	p.mu.Unlock()
	<-done
	p.logger.Info("outbox publisher stopped")
}

// ProcessPendingEvents runs one publish cycle: take the advisory lock,
// claim a batch, deliver row by row. A per-row failure marks that row
// and moves on; it never aborts the batch. Returns the number of events
// delivered in this cycle. Skipping when another instance holds the
// lock is normal operation, not an error.
func (p *OutboxPublisher) ProcessPendingEvents(ctx context.Context) (int, error) {
	unlock, acquired, err := p.store.TryPublishLock(ctx, p.cfg.LockKey)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire publish lock")
	}
	if !acquired {
		p.logger.Debug("publish lock held elsewhere, skipping cycle")
		return 0, nil
	}
	defer unlock()

	start := time.Now()
	defer func() {
		p.metrics.ObserveOutboxCycle(time.Since(start))
		p.refreshBacklog(ctx)
	}()

	events, err := p.store.ClaimPendingEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim outbox events")
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if err := p.transport.Publish(ctx, event); err != nil {
			p.recordFailure(ctx, event, err)
			continue
		}
		if err := p.store.MarkEventPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			p.logger.Error("failed to mark event published",
				zap.String("event_id", event.ID), zap.Error(err))
			continue
		}
		p.metrics.RecordOutboxPublished(event.EventType)
		published++
	}

	p.logger.Info("outbox cycle complete",
		zap.Int("claimed", len(events)),
		zap.Int("published", published))
	return published, nil
}

// RetryFailedEvents requeues failed rows created inside the retry
// window, resetting their attempt counters. Idempotent.
func (p *OutboxPublisher) RetryFailedEvents(ctx context.Context) (int64, error) {
	newerThan := time.Now().UTC().Add(-p.cfg.RetryWindow)
	reset, err := p.store.ResetFailedEvents(ctx, newerThan)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset failed events")
	}
	if reset > 0 {
		p.logger.Info("failed outbox events requeued", zap.Int64("count", reset))
	}
	p.refreshBacklog(ctx)
	return reset, nil
}

// CleanupOldEvents deletes published rows past retention. Failed rows
// are never cleaned up automatically. Idempotent.
func (p *OutboxPublisher) CleanupOldEvents(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.cfg.RetentionDays)
	deleted, err := p.store.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up outbox")
	}
	if deleted > 0 {
		p.logger.Info("published outbox events removed", zap.Int64("count", deleted))
	}
	p.refreshBacklog(ctx)
	return deleted, nil
}

func (p *OutboxPublisher) recordFailure(ctx context.Context, event models.OutboxEvent, publishErr error) {
	status, err := p.store.RecordPublishFailure(ctx, event.ID, publishErr.Error())
	if err != nil {
		p.logger.Error("failed to record publish failure",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	terminal := status == models.OutboxStatusFailed
	p.metrics.RecordOutboxFailure(terminal)
	if terminal {
		p.logger.Error("outbox event exhausted retries",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.Error(publishErr))
		return
	}
	p.logger.Warn("outbox publish failed, will retry next cycle",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int("retry_count", event.RetryCount+1),
		zap.Error(publishErr))
}

func (p *OutboxPublisher) refreshBacklog(ctx context.Context) {
	counts, err := p.store.CountOutboxByStatus(ctx)
	if err != nil {
		p.logger.Warn("failed to count outbox backlog", zap.Error(err))
		return
	}
	p.metrics.SetOutboxBacklog(counts)
}
