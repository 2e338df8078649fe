package ygggo_pool

import (
	"context"
	"time"
)

// HealthStatus reports the outcome of a pool health check.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Stats   PoolStats
	Err     string
}

// HealthCheck borrows a connection through the normal acquire path and pings
// it, so the check observes the same queueing and retry behavior callers do.
func (p *Pool) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	err := p.WithConn(ctx, func(c *Conn) error {
		return c.Ping(ctx)
	})
	status := HealthStatus{
		Healthy: err == nil,
		Latency: time.Since(start),
		Stats:   p.Stats(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	return status
}
