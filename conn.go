package ygggo_pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// Conn is one pooled server session, leased to exactly one caller at a time.
// It carries its own prepared statement cache; the cache lives and dies with
// the connection, since server-side statement handles are session-scoped.
// Close returns the connection to the pool rather than closing the session.
type Conn struct {
	id     string
	server ServerConn
	cache  *stmtCache
	pool   *Pool
	addr   Address

	// next links the idle stack; only touched under the pool mutex.
	next *Conn

	timeCreated time.Time
	timeUsed    atomic.Int64 // unix nanos of last use
	tainted     atomic.Bool
	closed      atomic.Bool
	released    atomic.Bool // set for the span between Close and the next lease
}

func newConn(p *Pool, server ServerConn, addr Address) *Conn {
	c := &Conn{
		id:          uuid.NewString(),
		server:      server,
		pool:        p,
		addr:        addr,
		timeCreated: time.Now(),
	}
	c.cache = newStmtCache(p.cfg.Cache, p.logger)
	c.touch()
	return c
}

// ID returns the connection's unique identifier. Two operations observing
// the same ID ran on the same server session.
func (c *Conn) ID() string { return c.id }

// Addr returns the server address this connection is bound to.
func (c *Conn) Addr() Address { return c.addr }

func (c *Conn) touch() { c.timeUsed.Store(time.Now().UnixNano()) }

// markLeased opens a new lease, re-arming Close.
func (c *Conn) markLeased() { c.released.Store(false) }

// idleExpired reports whether the connection has been unused longer than timeout.
func (c *Conn) idleExpired(timeout time.Duration, now time.Time) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(time.Unix(0, c.timeUsed.Load())) > timeout
}

// Exec runs query directly on the session, bypassing the statement cache.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (driver.Result, error) {
	vals, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	res, err := c.server.Exec(ctx, query, vals)
	c.noteResult(err)
	return res, err
}

// Query runs query directly and returns the raw row stream.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	vals, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	rows, err := c.server.Query(ctx, query, vals)
	c.noteResult(err)
	return rows, err
}

// ExecCached runs query through the prepared statement cache. The prepare
// and the execute both hit this connection's session, so the statement
// handle is always valid for the execute.
func (c *Conn) ExecCached(ctx context.Context, query string, args ...any) (driver.Result, error) {
	vals, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	st, release, cached, err := c.cache.acquire(ctx, c.server, query)
	if err != nil {
		c.noteResult(err)
		return nil, err
	}
	defer release()
	c.pool.recordCacheLookup(ctx, cached)
	res, err := st.Exec(ctx, vals)
	c.noteResult(err)
	return res, err
}

// QueryCached runs query through the prepared statement cache.
func (c *Conn) QueryCached(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	vals, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	st, release, cached, err := c.cache.acquire(ctx, c.server, query)
	if err != nil {
		c.noteResult(err)
		return nil, err
	}
	defer release()
	c.pool.recordCacheLookup(ctx, cached)
	rows, err := st.Query(ctx, vals)
	c.noteResult(err)
	return rows, err
}

// Ping verifies the session is alive.
func (c *Conn) Ping(ctx context.Context) error {
	err := c.server.Ping(ctx)
	c.noteResult(err)
	return err
}

// Taint marks the session unusable. A tainted connection is closed on
// release instead of being recycled.
func (c *Conn) Taint() { c.tainted.Store(true) }

// Close returns the connection to its pool. The underlying session is only
// closed when the connection is tainted, idle-expired or the pool is closed.
// Close is once-per-lease: a second call returns ErrConnReleased without
// touching the pool.
func (c *Conn) Close() error {
	if c.pool == nil {
		return c.closeServer()
	}
	if !c.released.CompareAndSwap(false, true) {
		return ErrConnReleased
	}
	c.pool.release(c)
	return nil
}

// closeServer tears down the session. Terminal; the statement cache is
// invalidated wholesale because the server-side handles die with the session.
func (c *Conn) closeServer() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cache.invalidateAll()
	return c.server.Close()
}

// noteResult taints the connection when an operation reports the session is
// no longer usable. Ordinary command failures do not discard the connection.
func (c *Conn) noteResult(err error) {
	if err == nil {
		c.touch()
		return
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || !c.server.IsValid() {
		c.Taint()
	}
}

// convertArgs maps caller arguments onto driver values.
func convertArgs(args []any) ([]driver.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	vals := make([]driver.Value, len(args))
	for i, a := range args {
		v, err := driver.DefaultParameterConverter.ConvertValue(a)
		if err != nil {
			return nil, fmt.Errorf("ygggo_pool: arg %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// CacheStats reports a connection's statement cache counters.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// CacheStats returns the statement cache counters for this connection.
func (c *Conn) CacheStats() CacheStats {
	h, m, s := c.cache.stats()
	return CacheStats{Hits: h, Misses: m, Size: s}
}
