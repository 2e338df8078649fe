// Package ygggo_pool provides resilient connection management for
// MySQL-family servers: round-robin connection establishment over multiple
// candidate addresses with bounded retry, and a bounded connection pool with
// per-connection prepared statement caching.
//
// # Overview
//
// ygggo_pool sits below query-building layers and above the wire protocol.
// It owns two tightly coupled concerns:
//
//   - Connection establishment: a configured list of server addresses is
//     tried in round-robin rotation, remembering where the last rotation
//     started so independent connection attempts spread load. When a whole
//     cycle fails, the factory waits a fixed interval and retries with a
//     fresh rotation, up to a configured number of cycles (-1 retries
//     forever).
//   - Pooling: connections are created lazily up to a hard maximum, handed
//     to exactly one caller at a time, queued for FIFO when saturated, and
//     closed when idle longer than the configured timeout.
//
// Prepared statements are cached per connection. Because a statement handle
// is scoped to the session that prepared it, a caller keeps one leased
// connection for a whole prepare-then-execute operation; WithConn makes that
// scoping explicit.
//
// # Quick Start
//
//	import ggp "github.com/yggai/ygggo_pool"
//
//	cfg := ggp.Config{
//		Addresses: []ggp.Address{
//			{Host: "db1.internal", Port: 3306},
//			{Host: "db2.internal", Port: 3306},
//		},
//		Username: "app",
//		Password: "secret",
//		Database: "orders",
//		Pool:     ggp.PoolConfig{MaxConnections: 16, IdleTimeout: 5 * time.Minute},
//		Retry:    ggp.RetryConfig{ReconnectAttempts: 3, ReconnectInterval: time.Second},
//		Cache:    ggp.CacheConfig{Enabled: true, MaxSize: 256},
//	}
//
//	pool, err := ggp.NewPool(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	err = pool.WithConn(ctx, func(c *ggp.Conn) error {
//		_, err := c.ExecCached(ctx, "INSERT INTO orders(sku, qty) VALUES (?, ?)", "A-1", 3)
//		return err
//	})
//
// # Observability
//
//   - Structured logging via log/slog, optionally bridged to ygggo_log
//   - OpenTelemetry tracing for connect and acquire
//   - OpenTelemetry metrics for pool occupancy, waits and cache outcomes
//
// # Configuration
//
// Programmatic configuration via Config, or environment variables with the
// YGGGO_POOL_* prefix (see NewConfigEnv).
package ygggo_pool

// Version returns the current library version.
func Version() string { return "0.1.0" }
