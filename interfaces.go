package ygggo_pool

import (
	"context"
	"database/sql/driver"
)

// Connector establishes one authenticated session with a single server.
// Implementations own the transport dial and the protocol handshake; the
// pool and factory treat both as opaque. A Connector must be safe for
// concurrent use.
type Connector interface {
	Connect(ctx context.Context, addr Address) (ServerConn, error)
}

// ServerConn is one live, authenticated session with a MySQL-family server.
// It is driven by exactly one caller at a time; the pool guarantees that.
type ServerConn interface {
	// Prepare compiles a statement server-side and returns its handle.
	// The handle is scoped to this session and dies with it.
	Prepare(ctx context.Context, query string) (Statement, error)

	// Exec runs a query directly, without a prepared statement.
	Exec(ctx context.Context, query string, args []driver.Value) (driver.Result, error)

	// Query runs a query directly and returns the raw row stream.
	Query(ctx context.Context, query string, args []driver.Value) (driver.Rows, error)

	// Ping verifies the session is still usable.
	Ping(ctx context.Context) error

	// IsValid reports whether the session can still accept commands.
	IsValid() bool

	Close() error
}

// Statement is an opaque server-side prepared statement handle.
// Close deallocates the statement on the server.
type Statement interface {
	Exec(ctx context.Context, args []driver.Value) (driver.Result, error)
	Query(ctx context.Context, args []driver.Value) (driver.Rows, error)
	Close() error
}

// Ensure the production connector satisfies the collaborator contract.
var _ Connector = (*mysqlConnector)(nil)
