package ygggo_pool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool
}

// Metrics holds the pool's metric instruments.
type Metrics struct {
	connectionsActive  metric.Int64UpDownCounter
	connectionsCreated metric.Int64Counter
	connectionsClosed  metric.Int64Counter
	connectDuration    metric.Float64Histogram
	acquireWait        metric.Float64Histogram
	waiters            metric.Int64UpDownCounter
	cacheLookups       metric.Int64Counter
}

var defaultMeter = otel.Meter(instrumentationName)

// EnableMetrics enables or disables metrics collection for this pool.
func (p *Pool) EnableMetrics(enabled bool) {
	if p == nil {
		return
	}
	p.metricsEnabled = enabled
	if enabled && p.metrics == nil {
		p.initMetrics()
	}
}

// SetMeterProvider sets a custom meter provider for metrics.
func (p *Pool) SetMeterProvider(provider metric.MeterProvider) {
	if p == nil {
		return
	}
	p.meterProvider = provider
	if p.metricsEnabled {
		p.initMetrics()
	}
}

func (p *Pool) initMetrics() {
	meter := defaultMeter
	if p.meterProvider != nil {
		meter = p.meterProvider.Meter(instrumentationName)
	}

	p.metrics = &Metrics{}
	p.metrics.connectionsActive, _ = meter.Int64UpDownCounter(
		"ygggo_pool_connections_active",
		metric.WithDescription("Connections currently leased to callers"),
	)
	p.metrics.connectionsCreated, _ = meter.Int64Counter(
		"ygggo_pool_connections_created_total",
		metric.WithDescription("Connections established"),
	)
	p.metrics.connectionsClosed, _ = meter.Int64Counter(
		"ygggo_pool_connections_closed_total",
		metric.WithDescription("Connections closed"),
	)
	p.metrics.connectDuration, _ = meter.Float64Histogram(
		"ygggo_pool_connect_duration_ms",
		metric.WithDescription("Connection establishment time in milliseconds"),
	)
	p.metrics.acquireWait, _ = meter.Float64Histogram(
		"ygggo_pool_acquire_wait_ms",
		metric.WithDescription("Time from acquire to lease in milliseconds"),
	)
	p.metrics.waiters, _ = meter.Int64UpDownCounter(
		"ygggo_pool_waiters",
		metric.WithDescription("Acquire requests queued for a free connection"),
	)
	p.metrics.cacheLookups, _ = meter.Int64Counter(
		"ygggo_pool_stmt_cache_lookups_total",
		metric.WithDescription("Prepared statement cache lookups by outcome"),
	)
}

func (p *Pool) recordAcquire(ctx context.Context, start time.Time, reused bool) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsActive.Add(ctx, 1)
	p.metrics.acquireWait.Record(ctx, float64(time.Since(start).Nanoseconds())/1e6,
		metric.WithAttributes(attribute.Bool("reused", reused)))
}

func (p *Pool) recordConnect(ctx context.Context, addr Address, d time.Duration) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsCreated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("address", addr.String())))
	p.metrics.connectDuration.Record(ctx, float64(d.Nanoseconds())/1e6)
}

func (p *Pool) recordRelease(ctx context.Context) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsActive.Add(ctx, -1)
}

func (p *Pool) recordClose(ctx context.Context, n int) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsClosed.Add(ctx, int64(n))
}

func (p *Pool) recordWaiter(ctx context.Context, delta int64) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.waiters.Add(ctx, delta)
}

func (p *Pool) recordCacheLookup(ctx context.Context, hit bool) {
	if !p.metricsEnabled || p.metrics == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.metrics.cacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
