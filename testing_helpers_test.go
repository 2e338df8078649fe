package ygggo_pool

import (
	"context"
	"database/sql/driver"
	"io"
	"sync"
	"sync/atomic"
)

// fakeConnector is an in-memory Connector. Tests steer it through hook and
// read back every dial attempt; it also tracks how many sessions are live at
// once so pool-bound properties can assert on the peak.
type fakeConnector struct {
	mu     sync.Mutex
	dialed []Address

	// hook, when set, decides each connect attempt. A nil hook always succeeds.
	hook func(ctx context.Context, addr Address) (ServerConn, error)

	live int64
	peak int64
}

func (f *fakeConnector) Connect(ctx context.Context, addr Address) (ServerConn, error) {
	f.mu.Lock()
	f.dialed = append(f.dialed, addr)
	f.mu.Unlock()
	if f.hook != nil {
		return f.hook(ctx, addr)
	}
	return f.newServerConn(addr), nil
}

func (f *fakeConnector) newServerConn(addr Address) *fakeServerConn {
	f.mu.Lock()
	f.live++
	if f.live > f.peak {
		f.peak = f.live
	}
	f.mu.Unlock()
	return &fakeServerConn{connector: f, addr: addr, valid: true}
}

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dialed)
}

func (f *fakeConnector) dialedAddrs() []Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Address(nil), f.dialed...)
}

func (f *fakeConnector) livePeak() (int64, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.peak
}

// fakeServerConn is an in-memory server session.
type fakeServerConn struct {
	connector *fakeConnector
	addr      Address
	valid     bool

	mu        sync.Mutex
	closed    bool
	prepared  []*fakeStatement
	execCount int

	prepareErr error
	execErr    error
	// stmtCloseErr is handed to statements prepared on this session.
	stmtCloseErr error
}

func (s *fakeServerConn) Prepare(ctx context.Context, query string) (Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	st := &fakeStatement{owner: s, query: query, closeErr: s.stmtCloseErr}
	s.prepared = append(s.prepared, st)
	return st, nil
}

func (s *fakeServerConn) Exec(ctx context.Context, query string, args []driver.Value) (driver.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr != nil {
		return nil, s.execErr
	}
	s.execCount++
	return fakeResult{}, nil
}

func (s *fakeServerConn) Query(ctx context.Context, query string, args []driver.Value) (driver.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr != nil {
		return nil, s.execErr
	}
	s.execCount++
	return &fakeRows{}, nil
}

func (s *fakeServerConn) Ping(ctx context.Context) error { return nil }

func (s *fakeServerConn) IsValid() bool { return s.valid }

func (s *fakeServerConn) Close() error {
	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !wasClosed && s.connector != nil {
		s.connector.mu.Lock()
		s.connector.live--
		s.connector.mu.Unlock()
	}
	return nil
}

func (s *fakeServerConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeServerConn) prepareCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prepared)
}

// fakeStatement is an in-memory prepared statement handle.
type fakeStatement struct {
	owner    *fakeServerConn
	query    string
	closeErr error
	closed   atomic.Bool
	execs    atomic.Int64
}

func (st *fakeStatement) Exec(ctx context.Context, args []driver.Value) (driver.Result, error) {
	st.execs.Add(1)
	return fakeResult{}, nil
}

func (st *fakeStatement) Query(ctx context.Context, args []driver.Value) (driver.Rows, error) {
	st.execs.Add(1)
	return &fakeRows{}, nil
}

func (st *fakeStatement) Close() error {
	st.closed.Store(true)
	return st.closeErr
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeRows struct{}

func (*fakeRows) Columns() []string              { return nil }
func (*fakeRows) Close() error                   { return nil }
func (*fakeRows) Next(dest []driver.Value) error { return io.EOF }

func testAddresses(n int) []Address {
	addrs := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, Address{Host: "db" + string(rune('a'+i)) + ".test", Port: 3306})
	}
	return addrs
}
