package ygggo_pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	mysql "github.com/go-sql-driver/mysql"
)

// mysqlConnector is the production Connector, backed by go-sql-driver/mysql
// at the driver level. Connect dials the address and performs the protocol
// handshake in one step; the returned session is ready for commands.
type mysqlConnector struct {
	connectors map[Address]driver.Connector
}

func newMySQLConnector(cfg Config) (*mysqlConnector, error) {
	m := make(map[Address]driver.Connector, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
		mc.Net = "tcp"
		mc.Addr = addr.String()
		if len(cfg.Params) > 0 {
			mc.Params = make(map[string]string, len(cfg.Params))
			for k, v := range cfg.Params {
				mc.Params[k] = v
			}
		}
		dc, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, fmt.Errorf("ygggo_pool: connector for %s: %w", addr, err)
		}
		m[addr] = dc
	}
	return &mysqlConnector{connectors: m}, nil
}

func (m *mysqlConnector) Connect(ctx context.Context, addr Address) (ServerConn, error) {
	dc, ok := m.connectors[addr]
	if !ok {
		return nil, fmt.Errorf("ygggo_pool: address %s not configured", addr)
	}
	raw, err := dc.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &mysqlServerConn{conn: raw}, nil
}

// mysqlServerConn adapts a driver.Conn to the ServerConn collaborator.
type mysqlServerConn struct {
	conn driver.Conn
}

func (c *mysqlServerConn) Prepare(ctx context.Context, query string) (Statement, error) {
	pc, ok := c.conn.(driver.ConnPrepareContext)
	if !ok {
		return nil, errors.New("ygggo_pool: driver does not support PrepareContext")
	}
	st, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &mysqlStatement{stmt: st}, nil
}

func (c *mysqlServerConn) Exec(ctx context.Context, query string, args []driver.Value) (driver.Result, error) {
	ec, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, errors.New("ygggo_pool: driver does not support ExecContext")
	}
	return ec.ExecContext(ctx, query, namedValues(args))
}

func (c *mysqlServerConn) Query(ctx context.Context, query string, args []driver.Value) (driver.Rows, error) {
	qc, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, errors.New("ygggo_pool: driver does not support QueryContext")
	}
	return qc.QueryContext(ctx, query, namedValues(args))
}

func (c *mysqlServerConn) Ping(ctx context.Context) error {
	pc, ok := c.conn.(driver.Pinger)
	if !ok {
		return nil
	}
	return pc.Ping(ctx)
}

func (c *mysqlServerConn) IsValid() bool {
	v, ok := c.conn.(driver.Validator)
	if !ok {
		return true
	}
	return v.IsValid()
}

func (c *mysqlServerConn) Close() error { return c.conn.Close() }

// mysqlStatement adapts a driver.Stmt to the Statement handle.
type mysqlStatement struct {
	stmt driver.Stmt
}

func (s *mysqlStatement) Exec(ctx context.Context, args []driver.Value) (driver.Result, error) {
	if se, ok := s.stmt.(driver.StmtExecContext); ok {
		return se.ExecContext(ctx, namedValues(args))
	}
	return s.stmt.Exec(args)
}

func (s *mysqlStatement) Query(ctx context.Context, args []driver.Value) (driver.Rows, error) {
	if sq, ok := s.stmt.(driver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, namedValues(args))
	}
	return s.stmt.Query(args)
}

func (s *mysqlStatement) Close() error { return s.stmt.Close() }

func namedValues(args []driver.Value) []driver.NamedValue {
	if len(args) == 0 {
		return nil
	}
	nvs := make([]driver.NamedValue, len(args))
	for i, v := range args {
		nvs[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nvs
}
