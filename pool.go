package ygggo_pool

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Pool owns a bounded set of server connections, created lazily through the
// connection factory. Acquire hands each caller exclusive use of one
// connection; callers queue FIFO when the pool is saturated. A multi-step
// operation (prepare then execute) holds one leased connection for its whole
// scope, so related commands always land on the same server session.
type Pool struct {
	cfg     Config
	factory *connectionFactory

	mu      sync.Mutex
	idle    connStack
	open    int // idle + leased + in-flight creations; never exceeds MaxConnections
	waiters *list.List
	closed  bool

	closeCh   chan struct{}
	sweepDone chan struct{}

	logger           *slog.Logger
	loggingEnabled   bool
	telemetryEnabled bool
	metricsEnabled   bool
	metrics          *Metrics
	meterProvider    metric.MeterProvider
}

// waiter is one queued acquire request. Its channel receives either a
// connection handed over by a releaser, or nil when a slot freed up and the
// waiter should retry creation.
type waiter struct {
	ch chan *Conn
}

// NewPool validates cfg and returns a pool. Connections are not established
// eagerly; the first Acquire dials.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	connector := cfg.Connector
	if connector == nil {
		var err error
		connector, err = newMySQLConnector(cfg)
		if err != nil {
			return nil, err
		}
	}

	p := &Pool{
		cfg:       cfg,
		waiters:   list.New(),
		closeCh:   make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	p.initLogging(cfg.Logging)
	p.factory = newConnectionFactory(connector, cfg.Addresses, cfg.Retry, p.logger)
	if cfg.Telemetry.Enabled {
		p.telemetryEnabled = true
	}
	if cfg.Metrics.Enabled {
		p.EnableMetrics(true)
	}

	if cfg.Pool.IdleTimeout > 0 {
		go p.sweepLoop()
	} else {
		close(p.sweepDone)
	}
	return p, nil
}

// NewPoolEnv builds a pool from YGGGO_POOL_* environment variables.
func NewPoolEnv(ctx context.Context) (*Pool, error) {
	cfg, err := NewConfigEnv()
	if err != nil {
		return nil, err
	}
	return NewPool(ctx, cfg)
}

// WithConn acquires a connection, runs fn with it, and releases it on every
// exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// Acquire returns a leased connection. It prefers an idle connection,
// creates a new one when a slot is free, and otherwise blocks in FIFO order
// until a connection is released, ctx is cancelled, or the pool closes.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p == nil {
		return nil, errors.New("ygggo_pool: nil pool")
	}
	start := time.Now()
	requeueFront := false
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		conn, pruned := p.popIdleLocked(time.Now())
		if conn != nil {
			p.mu.Unlock()
			p.closeConns(ctx, pruned)
			conn.markLeased()
			conn.touch()
			p.recordAcquire(ctx, start, true)
			return conn, nil
		}
		if p.open < p.cfg.Pool.MaxConnections {
			// Reserve the slot before dialing so concurrent acquirers can
			// never overshoot MaxConnections.
			p.open++
			p.mu.Unlock()
			p.closeConns(ctx, pruned)
			conn, err := p.create(ctx)
			if err != nil {
				// A failed creation must not consume capacity: roll the slot
				// back and pass it to the oldest waiter so it isn't stranded.
				p.mu.Lock()
				p.open--
				w := p.popWaiterLocked()
				p.mu.Unlock()
				if w != nil {
					w.ch <- nil
				}
				return nil, err
			}
			p.recordAcquire(ctx, start, false)
			return conn, nil
		}

		// Saturated and nothing idle: queue up.
		w := &waiter{ch: make(chan *Conn, 1)}
		var elem *list.Element
		if requeueFront {
			// We were nudged out of the queue by a freed slot but lost the
			// race for it; keep our original position.
			elem = p.waiters.PushFront(w)
		} else {
			elem = p.waiters.PushBack(w)
		}
		p.recordWaiter(ctx, 1)
		p.mu.Unlock()
		p.closeConns(ctx, pruned)

		select {
		case <-ctx.Done():
			p.mu.Lock()
			removed := p.removeWaiterLocked(elem)
			p.mu.Unlock()
			p.recordWaiter(ctx, -1)
			if !removed {
				// A hand-off is already in flight; take it and pass it on so
				// neither a connection nor a freed slot dies with us.
				if c := <-w.ch; c != nil {
					p.put(c)
				} else {
					p.nudgeWaiter()
				}
			}
			return nil, context.Cause(ctx)
		case <-p.closeCh:
			p.mu.Lock()
			removed := p.removeWaiterLocked(elem)
			p.mu.Unlock()
			p.recordWaiter(ctx, -1)
			if !removed {
				if c := <-w.ch; c != nil {
					p.mu.Lock()
					p.open--
					p.mu.Unlock()
					_ = c.closeServer()
				}
			}
			return nil, ErrPoolClosed
		case c := <-w.ch:
			p.recordWaiter(ctx, -1)
			if c != nil {
				c.markLeased()
				c.touch()
				p.recordAcquire(ctx, start, true)
				return c, nil
			}
			// Capacity freed up; retry from the top.
			requeueFront = true
		}
	}
}

// create dials a new connection through the factory. The retry/backoff loop
// may suspend this caller; unrelated pool operations keep running.
func (p *Pool) create(ctx context.Context) (*Conn, error) {
	ctx, span := p.startSpan(ctx, "connect")
	start := time.Now()
	server, addr, err := p.factory.connect(ctx)
	p.finishSpan(span, err)
	if err != nil {
		p.logPoolEvent(ctx, "connect failed", err)
		return nil, err
	}
	p.recordConnect(ctx, addr, time.Since(start))
	return newConn(p, server, addr), nil
}

// release ends a caller's lease and returns the connection to the pool.
func (p *Pool) release(c *Conn) {
	p.recordRelease(context.Background())
	p.put(c)
}

// put returns a connection to the pool. Tainted connections and releases
// into a closed pool tear the session down; otherwise the connection goes
// straight to the oldest waiter, or to the idle set when nobody is waiting
// and it hasn't idled out.
func (p *Pool) put(c *Conn) {
	ctx := context.Background()
	broken := c.tainted.Load() || c.closed.Load()

	p.mu.Lock()
	if p.closed || broken {
		p.open--
		w := p.popWaiterLocked()
		p.mu.Unlock()
		_ = c.closeServer()
		if w != nil {
			w.ch <- nil
		}
		p.recordClose(ctx, 1)
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		p.mu.Unlock()
		c.touch()
		w.ch <- c
		return
	}
	if c.idleExpired(p.cfg.Pool.IdleTimeout, time.Now()) {
		p.open--
		p.mu.Unlock()
		_ = c.closeServer()
		p.logPoolEvent(ctx, "idle connection closed", nil)
		p.recordClose(ctx, 1)
		return
	}
	c.touch()
	p.idle.push(c)
	p.mu.Unlock()
}

// Close shuts the pool down. Pending and future acquires fail with
// ErrPoolClosed, idle connections are closed now, and leased connections are
// closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	var drained []*Conn
	for {
		c, ok := p.idle.pop()
		if !ok {
			break
		}
		p.open--
		drained = append(drained, c)
	}
	p.mu.Unlock()

	for _, c := range drained {
		_ = c.closeServer()
	}
	p.recordClose(context.Background(), len(drained))
	<-p.sweepDone
	return nil
}

// popIdleLocked pops an idle connection, discarding any idle-expired ones
// found on the way. Expired connections are unlinked here, under the pool
// lock, so neither the sweep nor another acquirer can also claim them; the
// caller closes them after unlocking.
func (p *Pool) popIdleLocked(now time.Time) (*Conn, []*Conn) {
	var pruned []*Conn
	for {
		c, ok := p.idle.pop()
		if !ok {
			return nil, pruned
		}
		if c.idleExpired(p.cfg.Pool.IdleTimeout, now) {
			p.open--
			pruned = append(pruned, c)
			continue
		}
		return c, pruned
	}
}

// nudgeWaiter signals the oldest waiter that a slot has freed up.
func (p *Pool) nudgeWaiter() {
	p.mu.Lock()
	w := p.popWaiterLocked()
	p.mu.Unlock()
	if w != nil {
		w.ch <- nil
	}
}

func (p *Pool) popWaiterLocked() *waiter {
	elem := p.waiters.Front()
	if elem == nil {
		return nil
	}
	p.waiters.Remove(elem)
	return elem.Value.(*waiter)
}

func (p *Pool) removeWaiterLocked(elem *list.Element) bool {
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			p.waiters.Remove(elem)
			return true
		}
	}
	return false
}

func (p *Pool) closeConns(ctx context.Context, conns []*Conn) {
	for _, c := range conns {
		_ = c.closeServer()
		p.logPoolEvent(ctx, "idle connection closed", nil)
	}
	if len(conns) > 0 {
		p.recordClose(ctx, len(conns))
	}
}

// sweepLoop periodically evicts idle-expired connections independent of any
// caller's acquire or release.
func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(p.cfg.Pool.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			p.sweepIdle(time.Now())
		}
	}
}

func (p *Pool) sweepIdle(now time.Time) {
	p.mu.Lock()
	var expired, keep []*Conn
	for {
		c, ok := p.idle.pop()
		if !ok {
			break
		}
		if c.idleExpired(p.cfg.Pool.IdleTimeout, now) {
			p.open--
			expired = append(expired, c)
			continue
		}
		keep = append(keep, c)
	}
	// Re-push in reverse so the stack order survives the scan.
	for i := len(keep) - 1; i >= 0; i-- {
		p.idle.push(keep[i])
	}
	p.mu.Unlock()
	p.closeConns(context.Background(), expired)
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Open           int
	Idle           int
	InUse          int
	Waiters        int
	MaxConnections int
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Open:           p.open,
		Idle:           p.idle.len(),
		InUse:          p.open - p.idle.len(),
		Waiters:        p.waiters.Len(),
		MaxConnections: p.cfg.Pool.MaxConnections,
	}
}

// connStack is a LIFO of idle connections linked through Conn.next.
// All access happens under the pool mutex.
type connStack struct {
	top   *Conn
	count int
}

func (s *connStack) push(c *Conn) {
	c.next = s.top
	s.top = c
	s.count++
}

func (s *connStack) pop() (*Conn, bool) {
	if s.top == nil {
		return nil, false
	}
	c := s.top
	s.top = c.next
	s.count--
	c.next = nil
	return c, true
}

func (s *connStack) len() int { return s.count }
