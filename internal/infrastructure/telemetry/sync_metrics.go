// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics provides the metric surface of the synchronization engine:
// item outcomes, upstream API traffic, rate-limiter pressure and run
// durations. It implements the marketplace client's MetricsRecorder.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	itemsTotal         *Counter
	errorsTotal        *Counter
	apiRequestsTotal   *Counter
	rateLimitHitsTotal *Counter

	// Histogram metrics (distributions)
	syncDuration      *Histogram
	apiDuration       *Histogram
	rateLimitWaitTime *Histogram

	// Gauge metrics (point-in-time values)
	inProgress   *UpDownCounter
	catalogItems *Gauge
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	sm.itemsTotal, err = NewCounter(
		cfg.Meter,
		"sync_items_total",
		"Total number of items processed by sync runs, by outcome",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	sm.errorsTotal, err = NewCounter(
		cfg.Meter,
		"sync_errors_total",
		"Total number of sync runs that ended in failure or timeout",
		"{errors}",
	)
	if err != nil {
		return nil, err
	}

	sm.apiRequestsTotal, err = NewCounter(
		cfg.Meter,
		"api_requests_total",
		"Total number of marketplace API requests",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	sm.rateLimitHitsTotal, err = NewCounter(
		cfg.Meter,
		"rate_limit_hits_total",
		"Total number of requests delayed or rejected by rate limiting",
		"{hits}",
	)
	if err != nil {
		return nil, err
	}

	sm.syncDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "sync_duration_seconds",
		Description: "Wall-clock duration of sync runs",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.apiDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "api_request_duration_seconds",
		Description: "Duration of marketplace API requests",
		Unit:        "s",
		Boundaries:  APIDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.rateLimitWaitTime, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "rate_limit_wait_seconds",
		Description: "Time spent waiting for a rate-limit slot",
		Unit:        "s",
		Boundaries:  RateLimitWaitBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.inProgress, err = NewUpDownCounter(
		cfg.Meter,
		"sync_in_progress",
		"Number of sync runs currently executing",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	sm.catalogItems, err = NewGauge(
		cfg.Meter,
		"catalog_items_count",
		"Number of catalog rows currently stored",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Item Outcome Metrics
// =============================================================================

// ItemOutcome labels a processed item for metrics.
type ItemOutcome string

const (
	OutcomeCreated ItemOutcome = "created"
	OutcomeUpdated ItemOutcome = "updated"
	OutcomeFailed  ItemOutcome = "failed"
)

// RecordItems records one page worth of item outcomes.
func (sm *SyncMetrics) RecordItems(ctx context.Context, resource string, created, updated, failed int) {
	if created > 0 {
		sm.itemsTotal.Add(ctx, int64(created),
			AttrResource.String(resource),
			AttrOutcome.String(string(OutcomeCreated)),
		)
	}
	if updated > 0 {
		sm.itemsTotal.Add(ctx, int64(updated),
			AttrResource.String(resource),
			AttrOutcome.String(string(OutcomeUpdated)),
		)
	}
	if failed > 0 {
		sm.itemsTotal.Add(ctx, int64(failed),
			AttrResource.String(resource),
			AttrOutcome.String(string(OutcomeFailed)),
		)
	}
}

// =============================================================================
// Run Lifecycle Metrics
// =============================================================================

// RunStarted marks one more run in flight.
func (sm *SyncMetrics) RunStarted(ctx context.Context, resource string) {
	sm.inProgress.Add(ctx, 1, AttrResource.String(resource))
}

// RunFinished marks a run as no longer in flight and records its duration
// under its terminal status. Failure statuses also count one sync error.
func (sm *SyncMetrics) RunFinished(ctx context.Context, resource, status string, elapsed time.Duration) {
	sm.inProgress.Add(ctx, -1, AttrResource.String(resource))
	sm.syncDuration.RecordDuration(ctx, elapsed,
		AttrResource.String(resource),
		AttrStatus.String(status),
	)
	if status != "completed" {
		sm.errorsTotal.Inc(ctx,
			AttrResource.String(resource),
			AttrStatus.String(status),
		)
	}
}

// RecordCatalogSize publishes the current stored catalog row count.
func (sm *SyncMetrics) RecordCatalogSize(ctx context.Context, count int64) {
	sm.catalogItems.Record(ctx, count)
}

// =============================================================================
// API Client Metrics (marketplace.MetricsRecorder)
// =============================================================================

// RecordAPIRequest records one marketplace API request. Status code 0 marks
// a transport failure with no HTTP response.
func (sm *SyncMetrics) RecordAPIRequest(ctx context.Context, account, resource string, statusCode int, elapsed time.Duration) {
	sm.apiRequestsTotal.Inc(ctx,
		AttrAccount.String(account),
		AttrResource.String(resource),
		AttrHTTPStatusCode.Int(statusCode),
	)
	sm.apiDuration.RecordDuration(ctx, elapsed,
		AttrAccount.String(account),
		AttrResource.String(resource),
	)
}

// RecordRateLimitWait records time spent queued behind the rate limiter.
func (sm *SyncMetrics) RecordRateLimitWait(ctx context.Context, class string, waited time.Duration) {
	sm.rateLimitWaitTime.RecordDuration(ctx, waited, AttrRateClass.String(class))
}

// RecordRateLimitHit records a request the limiter delayed past its deadline
// or penalized after an upstream 429.
func (sm *SyncMetrics) RecordRateLimitHit(ctx context.Context, class string) {
	sm.rateLimitHitsTotal.Inc(ctx, AttrRateClass.String(class))
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
