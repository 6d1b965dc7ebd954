// Package database builds engines: a database/sql handle bound to a dialect
// and a pool class.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/logger"
)

// Engine is a pooled database handle
type Engine struct {
	url       *dburl.URL
	dialect   dialect.Dialect
	db        *sql.DB
	opts      Options
	connector *countingConnector
}

// Stats describes an engine's connection usage
type Stats struct {
	// Connects is the number of physical connections opened
	Connects int64
	// Open is the number of connections currently open
	Open int
	// InUse is the number of connections checked out
	InUse int
}

// New creates an engine. No connection is opened until Connect.
func New(u *dburl.URL, opts Options) (*Engine, error) {
	if u == nil {
		return nil, fmt.Errorf("database URL is required")
	}
	if opts.Pool == "" {
		opts.Pool = NullPool
	}

	d, err := dialect.ForURL(u)
	if err != nil {
		return nil, err
	}

	connector, err := newCountingConnector(d.DriverName(), u.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connector: %w", d.Name(), err)
	}

	db := sql.OpenDB(connector)
	configureConnectionPool(db, opts)

	logger.Debug("Created %s engine for %s (pool: %s)", d.Name(), u.Redacted(), opts.Pool)

	return &Engine{
		url:       u,
		dialect:   d,
		db:        db,
		opts:      opts,
		connector: connector,
	}, nil
}

// FromConfig creates an engine from the options of a config section. The URL
// is read from <prefix>url and pool settings from <prefix>poolclass,
// <prefix>pool_size, <prefix>max_overflow, <prefix>pool_recycle and
// <prefix>connect_timeout. Non-zero fields of overrides take precedence over
// the section.
func FromConfig(section map[string]string, prefix string, overrides Options) (*Engine, error) {
	raw, ok := section[prefix+"url"]
	if !ok || raw == "" {
		return nil, fmt.Errorf("configuration option %surl is not set", prefix)
	}

	u, err := dburl.Parse(raw)
	if err != nil {
		return nil, err
	}

	opts, err := optionsFromSection(section, prefix)
	if err != nil {
		return nil, err
	}

	return New(u, opts.merge(overrides))
}

// Dialect returns the engine's dialect
func (e *Engine) Dialect() dialect.Dialect {
	return e.dialect
}

// URL returns the engine's connection URL
func (e *Engine) URL() *dburl.URL {
	return e.url
}

// Pool returns the engine's pool class
func (e *Engine) Pool() PoolClass {
	return e.opts.Pool
}

// DB returns the underlying handle
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Connect checks out a connection. Close the connection to release it.
func (e *Engine) Connect(ctx context.Context) (*Connection, error) {
	if e.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", e.url.Redacted(), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", e.url.Redacted(), err)
	}

	return &Connection{Conn: conn, engine: e}, nil
}

// Stats returns connection usage
func (e *Engine) Stats() Stats {
	s := e.db.Stats()
	return Stats{
		Connects: e.connector.connects.Load(),
		Open:     s.OpenConnections,
		InUse:    s.InUse,
	}
}

// Dispose closes every pooled connection
func (e *Engine) Dispose() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("failed to dispose engine: %w", err)
	}
	return nil
}

// Connection is a connection checked out of an engine
type Connection struct {
	*sql.Conn
	engine *Engine
}

// Dialect returns the connection's dialect
func (c *Connection) Dialect() dialect.Dialect {
	return c.engine.dialect
}

// countingConnector counts physical connections
type countingConnector struct {
	drv      driver.Driver
	dsn      string
	inner    driver.Connector
	connects atomic.Int64
}

func newCountingConnector(driverName, dsn string) (*countingConnector, error) {
	// sql.Open does not connect; it only resolves the registered driver
	probe, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	drv := probe.Driver()
	_ = probe.Close()

	c := &countingConnector{drv: drv, dsn: dsn}
	if dc, ok := drv.(driver.DriverContext); ok {
		inner, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		c.inner = inner
	}
	return c, nil
}

func (c *countingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	var (
		conn driver.Conn
		err  error
	)
	if c.inner != nil {
		conn, err = c.inner.Connect(ctx)
	} else {
		conn, err = c.drv.Open(c.dsn)
	}
	if err != nil {
		return nil, err
	}
	c.connects.Add(1)
	return conn, nil
}

func (c *countingConnector) Driver() driver.Driver {
	return c.drv
}
