package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/entitlement-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the balance cache, the outbox publisher and the hold sweeper.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	outboxPublished *prometheus.CounterVec
	outboxFailures  *prometheus.CounterVec
	outboxBacklog   *prometheus.GaugeVec
	outboxCycles    prometheus.Observer
	eventsConsumed  *prometheus.CounterVec
	holdsExpired    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "balance_cache_latency_seconds",
		Help:    "Latency for balance cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "balance_cache_write_seconds",
		Help:    "Latency for balance cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_cache_hits_total",
		Help: "Total balance cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_cache_misses_total",
		Help: "Total balance cache misses",
	})

	outboxPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events delivered to the transport",
	}, []string{"event_type"})

	outboxFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox delivery attempts that failed",
	}, []string{"terminal"})

	outboxBacklog := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbox_events",
		Help: "Outbox rows by status",
	}, []string{"status"})

	outboxCycles := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_cycle_duration_seconds",
		Help:    "Duration of publisher cycles that held the lock",
		Buckets: prometheus.DefBuckets,
	})

	eventsConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_events_consumed_total",
		Help: "Inbound domain events processed by outcome",
	}, []string{"event_type", "outcome"})

	holdsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "holds_expired_total",
		Help: "Active holds expired by the sweeper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, outboxPublished, outboxFailures, outboxBacklog,
		outboxCycles, eventsConsumed, holdsExpired, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		outboxPublished: outboxPublished,
		outboxFailures:  outboxFailures,
		outboxBacklog:   outboxBacklog,
		outboxCycles:    outboxCycles,
		eventsConsumed:  eventsConsumed,
		holdsExpired:    holdsExpired,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordOutboxPublished counts a delivered outbox event.
func (m *MetricsService) RecordOutboxPublished(eventType string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(eventType).Inc()
}

// RecordOutboxFailure counts a failed delivery attempt. terminal is true
// when the row exhausted its retry budget.
func (m *MetricsService) RecordOutboxFailure(terminal bool) {
	if m == nil {
		return
	}
	m.outboxFailures.WithLabelValues(fmt.Sprintf("%t", terminal)).Inc()
}

// SetOutboxBacklog reflects the current per-status row counts.
func (m *MetricsService) SetOutboxBacklog(counts map[models.OutboxStatus]int) {
	if m == nil {
		return
	}
	for _, status := range []models.OutboxStatus{models.OutboxStatusPending, models.OutboxStatusPublished, models.OutboxStatusFailed} {
		m.outboxBacklog.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// ObserveOutboxCycle records the duration of one publisher cycle.
func (m *MetricsService) ObserveOutboxCycle(duration time.Duration) {
	if m == nil || m.outboxCycles == nil {
		return
	}
	m.outboxCycles.Observe(duration.Seconds())
}

// RecordEventConsumed counts an inbound event by outcome
// (applied, noop, error).
func (m *MetricsService) RecordEventConsumed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(eventType, outcome).Inc()
}

// RecordHoldsExpired counts sweeper expirations.
func (m *MetricsService) RecordHoldsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
}
