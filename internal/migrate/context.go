// Package migrate runs revisions against a database, or renders them as a
// SQL script when no connection is available.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/toolsascode/stackmig/internal/config"
	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/logger"
	"github.com/toolsascode/stackmig/internal/ops"
	"github.com/toolsascode/stackmig/internal/registry"
	"github.com/toolsascode/stackmig/internal/schema"
)

// Conn is the subset of *sql.Conn and *sql.DB a migration run needs
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Options configure a Context. Set URL for an offline run or Conn for an
// online run, never both.
type Options struct {
	// URL selects offline mode: statements are written to Output
	URL *dburl.URL
	// Conn selects online mode: statements run on the connection
	Conn Conn
	// Dialect is required online and derived from URL offline
	Dialect dialect.Dialect

	TargetMetadata *schema.MetaData

	// LiteralBinds renders parameter values inline (offline only)
	LiteralBinds bool
	// ParamStyle of offline placeholders when LiteralBinds is false
	ParamStyle dialect.ParamStyle
	// Output receives the offline script, os.Stdout when nil
	Output io.Writer

	VersionTable string
	// Target revision, "head" when empty
	Target string
	// StartingRevision is the assumed current revision offline
	StartingRevision string
}

// Result describes a finished run
type Result struct {
	From      string
	To        string
	Applied   []string
	Committed bool
}

// Context is a configured migration context
type Context struct {
	registry registry.Registry

	opts       Options
	dialect    dialect.Dialect
	configured bool

	tx     *sql.Tx
	inTx   bool
	out    *scriptWriter
	result Result
}

// NewContext returns an unconfigured context drawing revisions from reg
func NewContext(reg registry.Registry) *Context {
	if reg == nil {
		reg = registry.GlobalRegistry
	}
	return &Context{registry: reg}
}

// Configure binds the context to a URL or a connection and the target
// metadata
func (c *Context) Configure(opts Options) error {
	if opts.URL == nil && opts.Conn == nil {
		return fmt.Errorf("either a URL or a connection is required")
	}
	if opts.URL != nil && opts.Conn != nil {
		return fmt.Errorf("a URL and a connection cannot both be configured")
	}
	if opts.TargetMetadata == nil {
		return fmt.Errorf("target metadata is required")
	}
	if opts.VersionTable == "" {
		opts.VersionTable = config.DefaultVersionTable
	}
	if opts.Target == "" {
		opts.Target = registry.Head
	}

	d := opts.Dialect
	if opts.URL != nil {
		if d == nil {
			var err error
			if d, err = dialect.ForURL(opts.URL); err != nil {
				return err
			}
		}
		if opts.Output == nil {
			opts.Output = os.Stdout
		}
	} else {
		if d == nil {
			return fmt.Errorf("a dialect is required for online migrations")
		}
		if opts.LiteralBinds {
			return fmt.Errorf("literal binds are only supported offline")
		}
		if opts.StartingRevision != "" {
			return fmt.Errorf("a starting revision is only supported offline")
		}
	}

	c.opts = opts
	c.dialect = d
	c.out = &scriptWriter{w: opts.Output}
	c.configured = true
	c.result = Result{}

	logger.Debug("Configured migration context (offline: %v, dialect: %s, version table: %s)",
		c.IsOfflineMode(), d.Name(), opts.VersionTable)
	return nil
}

// IsOfflineMode reports whether statements are rendered instead of executed
func (c *Context) IsOfflineMode() bool {
	return c.opts.URL != nil
}

// Dialect returns the configured dialect
func (c *Context) Dialect() dialect.Dialect {
	return c.dialect
}

// Result returns what the last run did
func (c *Context) Result() Result {
	return c.result
}

// WithTransaction runs fn inside a transaction. Online, the transaction is
// committed when fn succeeds and rolled back when it fails or panics.
// Offline, BEGIN and COMMIT statements bracket the script.
func (c *Context) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.configured {
		return fmt.Errorf("migration context is not configured")
	}
	if c.inTx {
		return fmt.Errorf("a transaction is already in progress")
	}
	c.inTx = true
	defer func() { c.inTx = false }()

	if c.IsOfflineMode() {
		return c.offlineTransaction(ctx, fn)
	}

	tx, err := c.opts.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.tx = tx
	defer func() {
		c.tx = nil
		_ = tx.Rollback()
	}()

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	c.result.Committed = true
	return nil
}

func (c *Context) offlineTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.out.statement("BEGIN"); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := c.out.statement("COMMIT"); err != nil {
		return err
	}
	c.result.Committed = true
	return nil
}

// RunMigrations applies every revision between the current and the target
// revision, stamping the version table after each one
func (c *Context) RunMigrations(ctx context.Context) error {
	if !c.configured {
		return fmt.Errorf("migration context is not configured")
	}

	exec := c.executor()

	current, err := c.prepareVersionTable(ctx, exec)
	if err != nil {
		return err
	}

	path, err := c.registry.Resolve(current, c.opts.Target)
	if err != nil {
		return fmt.Errorf("failed to resolve revisions: %w", err)
	}

	c.result.From = current
	c.result.To = current
	if len(path) == 0 {
		logger.Info("Database is up to date at revision %s", revisionLabel(current))
		return nil
	}

	op := ops.New(c.dialect, exec)
	previous := current
	for _, rev := range path {
		logger.Info("Running upgrade %s -> %s, %s", revisionLabel(previous), rev.ID, rev.Message)
		if c.IsOfflineMode() {
			if err := c.out.comment(fmt.Sprintf("Running upgrade %s -> %s", revisionLabel(previous), rev.ID)); err != nil {
				return err
			}
		}

		if err := rev.Upgrade(ctx, op); err != nil {
			return fmt.Errorf("revision %s failed: %w", rev.ID, err)
		}
		if err := c.stamp(ctx, exec, previous, rev.ID); err != nil {
			return err
		}

		c.result.Applied = append(c.result.Applied, rev.ID)
		c.result.To = rev.ID
		previous = rev.ID
	}

	for _, table := range op.Tables() {
		if table != c.opts.VersionTable && !c.opts.TargetMetadata.Has(table) {
			logger.Warn("Table %s was changed by a revision but is not part of the target metadata", table)
		}
	}

	return nil
}

func revisionLabel(id string) string {
	if id == "" {
		return "<base>"
	}
	return id
}
