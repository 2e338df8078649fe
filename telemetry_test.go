package ygggo_pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTelemetry_ConnectSpanRecorded(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTracer := tracer
	tracer = tp.Tracer(instrumentationName)
	t.Cleanup(func() { tracer = prevTracer })

	fc := &fakeConnector{}
	pool := newTestPool(t, fc, func(cfg *Config) {
		cfg.Telemetry.Enabled = true
	})

	err := pool.WithConn(context.Background(), func(c *Conn) error { return nil })
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "ygggo_pool.connect", spans[0].Name)
}

func TestTelemetry_DisabledLeavesNoSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTracer := tracer
	tracer = tp.Tracer(instrumentationName)
	t.Cleanup(func() { tracer = prevTracer })

	fc := &fakeConnector{}
	pool := newTestPool(t, fc, nil)

	err := pool.WithConn(context.Background(), func(c *Conn) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, exporter.GetSpans())
}

func TestMetrics_PoolCountersRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	fc := &fakeConnector{}
	pool := newTestPool(t, fc, func(cfg *Config) {
		cfg.Pool.MaxConnections = 2
	})
	pool.SetMeterProvider(provider)
	pool.EnableMetrics(true)

	ctx := context.Background()
	err := pool.WithConn(ctx, func(c *Conn) error {
		if _, err := c.ExecCached(ctx, "SELECT 1"); err != nil {
			return err
		}
		_, err := c.ExecCached(ctx, "SELECT 1")
		return err
	})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["ygggo_pool_connections_created_total"])
	assert.True(t, names["ygggo_pool_connections_active"])
	assert.True(t, names["ygggo_pool_stmt_cache_lookups_total"])
}

func TestMetrics_ActiveCounterBalancedAfterLostCancelRace(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	fc := &fakeConnector{}
	pool := newTestPool(t, fc, func(cfg *Config) {
		cfg.Pool.MaxConnections = 1
	})
	pool.SetMeterProvider(provider)
	pool.EnableMetrics(true)
	ctx := context.Background()

	holder, err := pool.Acquire(ctx)
	require.NoError(t, err)

	w1Ctx, cancelW1 := context.WithCancel(ctx)
	w1Err := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(w1Ctx)
		w1Err <- err
	}()
	require.Eventually(t, func() bool {
		return pool.Stats().Waiters == 1
	}, time.Second, time.Millisecond)

	// Release the connection toward the waiter, then cancel it while the
	// hand-off is in flight. The waiter puts the connection back; that
	// hand-back must not count as a second release.
	pool.mu.Lock()
	w := pool.popWaiterLocked()
	pool.mu.Unlock()
	cancelW1()
	time.Sleep(10 * time.Millisecond)
	pool.recordRelease(ctx)
	holder.released.Store(true)
	holder.touch()
	w.ch <- holder

	require.ErrorIs(t, <-w1Err, context.Canceled)
	require.Eventually(t, func() bool {
		return pool.Stats().Idle == 1
	}, time.Second, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "ygggo_pool_connections_active" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, int64(0), total, "one lease, one release")
		}
	}
}

func TestMetrics_DisabledRecordsNothing(t *testing.T) {
	fc := &fakeConnector{}
	pool := newTestPool(t, fc, nil)

	// Every record helper must be a safe no-op without instruments.
	pool.recordAcquire(context.Background(), time.Now(), true)
	pool.recordRelease(context.Background())
	pool.recordWaiter(context.Background(), 1)
	pool.recordCacheLookup(context.Background(), true)
	assert.Nil(t, pool.metrics)
}
