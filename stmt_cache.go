package ygggo_pool

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// stmtCache is a per-connection LRU cache of server-side prepared statements.
// Entries carry a reference count of in-flight users; an entry is only an
// eviction candidate while its count is zero, so a handle is never
// deallocated out from under an executing caller. When every entry is
// referenced the cache temporarily exceeds its nominal capacity.
type stmtCache struct {
	cfg    CacheConfig
	logger *slog.Logger

	mu sync.Mutex
	ll *list.List               // front = most recently used
	m  map[string]*list.Element // sql -> element

	hits   atomic.Uint64
	misses atomic.Uint64
}

type stmtEntry struct {
	key  string
	stmt Statement
	refs int // guarded by the cache mutex
}

func newStmtCache(cfg CacheConfig, logger *slog.Logger) *stmtCache {
	return &stmtCache{cfg: cfg, logger: logger, ll: list.New(), m: make(map[string]*list.Element)}
}

// cacheable reports whether query may be cached under the configured policy.
func (c *stmtCache) cacheable(query string) bool {
	if !c.cfg.Enabled || c.cfg.MaxSize <= 0 {
		return false
	}
	if len(query) > c.cfg.MaxSQLLength {
		return false
	}
	if c.cfg.Filter != nil && !c.cfg.Filter(query) {
		return false
	}
	return true
}

// acquire returns a prepared statement for query, preparing it on sc when
// needed. The returned release func must be called once the caller is done
// with the handle; for uncacheable queries it deallocates the statement, for
// cached ones it drops the reference that pins the entry against eviction.
func (c *stmtCache) acquire(ctx context.Context, sc ServerConn, query string) (Statement, func(), bool, error) {
	if !c.cacheable(query) {
		st, err := sc.Prepare(ctx, query)
		if err != nil {
			return nil, nil, false, err
		}
		return st, func() { _ = st.Close() }, false, nil
	}

	c.mu.Lock()
	if ele, ok := c.m[query]; ok {
		c.ll.MoveToFront(ele)
		e := ele.Value.(*stmtEntry)
		e.refs++
		c.mu.Unlock()
		c.hits.Add(1)
		return e.stmt, func() { c.releaseEntry(e) }, true, nil
	}
	c.mu.Unlock()

	// Prepare outside the lock; a round trip to the server is too slow to
	// hold other statement lookups.
	st, err := sc.Prepare(ctx, query)
	if err != nil {
		return nil, nil, false, err
	}

	c.mu.Lock()
	if ele, ok := c.m[query]; ok {
		// Lost a race within the same connection scope; keep the existing handle.
		e := ele.Value.(*stmtEntry)
		c.ll.MoveToFront(ele)
		e.refs++
		c.mu.Unlock()
		_ = st.Close()
		c.hits.Add(1)
		return e.stmt, func() { c.releaseEntry(e) }, true, nil
	}
	e := &stmtEntry{key: query, stmt: st, refs: 1}
	c.m[query] = c.ll.PushFront(e)
	if c.ll.Len() > c.cfg.MaxSize {
		c.evictLRU()
	}
	c.mu.Unlock()
	c.misses.Add(1)
	return e.stmt, func() { c.releaseEntry(e) }, false, nil
}

func (c *stmtCache) releaseEntry(e *stmtEntry) {
	c.mu.Lock()
	e.refs--
	c.mu.Unlock()
}

// evictLRU removes the least-recently-used unreferenced entry and schedules
// its deallocation. Called with the cache mutex held. If every entry is in
// use nothing is evicted.
func (c *stmtCache) evictLRU() {
	for ele := c.ll.Back(); ele != nil; ele = ele.Prev() {
		e := ele.Value.(*stmtEntry)
		if e.refs > 0 {
			continue
		}
		c.ll.Remove(ele)
		delete(c.m, e.key)
		// Deallocate fire-and-forget; a failed DEALLOCATE is logged, never
		// surfaced to the caller that triggered the eviction.
		go func(key string, st Statement) {
			if err := st.Close(); err != nil && c.logger != nil {
				c.logger.LogAttrs(context.Background(), slog.LevelWarn, "statement deallocate failed",
					slog.String("query", key),
					slog.String("error", err.Error()),
				)
			}
		}(e.key, e.stmt)
		return
	}
}

// invalidateAll drops every entry. Called when the owning connection closes;
// the server-side handles die with the session, so handles are closed
// best-effort.
func (c *stmtCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ele := c.ll.Front(); ele != nil; ele = ele.Next() {
		_ = ele.Value.(*stmtEntry).stmt.Close()
	}
	c.ll.Init()
	clear(c.m)
}

func (c *stmtCache) stats() (hits, misses uint64, size int) {
	hits = c.hits.Load()
	misses = c.misses.Load()
	c.mu.Lock()
	size = c.ll.Len()
	c.mu.Unlock()
	return
}
