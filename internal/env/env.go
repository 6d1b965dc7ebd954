// Package env bootstraps a migration run. It resolves the database URL into
// the configuration, binds the application metadata and runs the migration
// engine either offline, rendering a SQL script, or online against a live
// connection.
package env

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/toolsascode/stackmig/internal/autogen"
	"github.com/toolsascode/stackmig/internal/config"
	"github.com/toolsascode/stackmig/internal/database"
	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/logger"
	"github.com/toolsascode/stackmig/internal/migrate"
	"github.com/toolsascode/stackmig/internal/registry"
	"github.com/toolsascode/stackmig/internal/schema"
)

// URLOption is the main option holding the connection URL
const URLOption = "db.url"

// EnginePrefix prefixes the engine options of the main section
const EnginePrefix = "db."

// Mode selects how a run reaches the database
type Mode int

const (
	// ModeOnline runs statements on a live connection
	ModeOnline Mode = iota
	// ModeOffline renders statements as a SQL script
	ModeOffline
)

func (m Mode) String() string {
	if m == ModeOffline {
		return "offline"
	}
	return "online"
}

// Options configure a Bootstrapper
type Options struct {
	Config *config.Config
	// DatabaseURL overrides the configured db.url
	DatabaseURL string
	Metadata    *schema.MetaData
	// Registry supplies revisions, registry.GlobalRegistry when nil
	Registry registry.Registry
	// Output receives the offline script
	Output io.Writer
	// Target revision, "head" when empty
	Target string
	// StartingRevision is assumed to be applied in offline runs
	StartingRevision string
}

type engineOpener func(section map[string]string, prefix string, overrides database.Options) (*database.Engine, error)

// Bootstrapper prepares and runs migration contexts
type Bootstrapper struct {
	opts       Options
	url        *dburl.URL
	openEngine engineOpener
	result     migrate.Result
	stats      database.Stats
}

// New creates a Bootstrapper. Call Initialize before running it.
func New(opts Options) (*Bootstrapper, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("target metadata is required")
	}
	if opts.Registry == nil {
		opts.Registry = registry.GlobalRegistry
	}
	return &Bootstrapper{
		opts:       opts,
		openEngine: database.FromConfig,
	}, nil
}

// Initialize writes the database URL into the configuration, parses it and
// applies the [logging] section
func (b *Bootstrapper) Initialize() error {
	logging := b.opts.Config.Logging()
	if err := logger.Configure(logging.Level, logging.Format, nil); err != nil {
		return fmt.Errorf("invalid [%s] section: %w", config.LoggingSection, err)
	}

	if override := strings.TrimSpace(b.opts.DatabaseURL); override != "" {
		b.opts.Config.SetMainOption(URLOption, override)
	}

	raw := b.opts.Config.GetMainOption(URLOption, "")
	if raw == "" {
		return fmt.Errorf("no database URL: set DATABASE_URL or %s in [%s]", URLOption, config.MainSection)
	}

	u, err := dburl.Parse(raw)
	if err != nil {
		return err
	}
	b.url = u

	logger.Debug("Resolved database URL %s", u.Redacted())
	return nil
}

// URL returns the resolved database URL
func (b *Bootstrapper) URL() *dburl.URL {
	return b.url
}

// Result returns the outcome of the last run
func (b *Bootstrapper) Result() migrate.Result {
	return b.result
}

// EngineStats returns the connection usage of the last online engine, taken
// after it was disposed
func (b *Bootstrapper) EngineStats() database.Stats {
	return b.stats
}

// Run dispatches to RunOffline or RunOnline
func (b *Bootstrapper) Run(ctx context.Context, mode Mode) error {
	logger.Debug("Running migrations %s", mode)
	if mode == ModeOffline {
		return b.RunOffline(ctx)
	}
	return b.RunOnline(ctx)
}

// RunOffline renders the upgrade as a SQL script. No connection is opened.
func (b *Bootstrapper) RunOffline(ctx context.Context) error {
	if b.url == nil {
		return fmt.Errorf("bootstrapper is not initialized")
	}

	logger.Info("Generating SQL for %s", b.url.Redacted())

	mc := migrate.NewContext(b.opts.Registry)
	err := mc.Configure(migrate.Options{
		URL:              b.url,
		TargetMetadata:   b.opts.Metadata,
		LiteralBinds:     true,
		ParamStyle:       dialect.Named,
		Output:           b.opts.Output,
		VersionTable:     b.opts.Config.VersionTable(),
		Target:           b.opts.Target,
		StartingRevision: b.opts.StartingRevision,
	})
	if err != nil {
		return err
	}

	err = mc.WithTransaction(ctx, mc.RunMigrations)
	b.result = mc.Result()
	return err
}

// RunOnline runs the upgrade on one fresh connection inside one transaction
func (b *Bootstrapper) RunOnline(ctx context.Context) error {
	return b.withConnection(ctx, func(ctx context.Context, conn *database.Connection) error {
		mc := migrate.NewContext(b.opts.Registry)
		err := mc.Configure(migrate.Options{
			Conn:           conn,
			Dialect:        conn.Dialect(),
			TargetMetadata: b.opts.Metadata,
			VersionTable:   b.opts.Config.VersionTable(),
			Target:         b.opts.Target,
		})
		if err != nil {
			return err
		}

		err = mc.WithTransaction(ctx, mc.RunMigrations)
		b.result = mc.Result()
		return err
	})
}

// Current returns the revision recorded in the database, or the empty string
// when none has been applied
func (b *Bootstrapper) Current(ctx context.Context) (string, error) {
	var current string
	err := b.withConnection(ctx, func(ctx context.Context, conn *database.Connection) error {
		mc := migrate.NewContext(b.opts.Registry)
		err := mc.Configure(migrate.Options{
			Conn:           conn,
			Dialect:        conn.Dialect(),
			TargetMetadata: b.opts.Metadata,
			VersionTable:   b.opts.Config.VersionTable(),
		})
		if err != nil {
			return err
		}
		current, err = mc.CurrentRevision(ctx)
		return err
	})
	return current, err
}

// Compare diffs the metadata against the live database
func (b *Bootstrapper) Compare(ctx context.Context) (*autogen.Diff, error) {
	var diff *autogen.Diff
	err := b.withConnection(ctx, func(ctx context.Context, conn *database.Connection) error {
		var err error
		diff, err = autogen.Compare(ctx, conn, conn.Dialect(), b.opts.Metadata, b.opts.Config.VersionTable())
		return err
	})
	return diff, err
}

// CreateAll creates every metadata table and index that does not exist yet,
// bypassing revisions. The engine is pooled with the application settings.
func (b *Bootstrapper) CreateAll(ctx context.Context, settings *config.Settings) error {
	if b.url == nil {
		return fmt.Errorf("bootstrapper is not initialized")
	}
	if settings == nil {
		return fmt.Errorf("settings are required")
	}

	engine, err := database.New(b.url, database.Options{
		Pool:        database.QueuePool,
		PoolSize:    settings.DBPoolSize,
		MaxOverflow: settings.DBMaxOverflow,
		Recycle:     settings.PoolRecycle(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = engine.Dispose() }()

	tables, err := b.opts.Metadata.SortedTables()
	if err != nil {
		return err
	}

	d := engine.Dialect()
	tx, err := engine.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tables {
		ddl, err := dialect.CreateTable(d, t, true)
		if err != nil {
			return err
		}
		statements := []string{ddl}
		for _, idx := range t.Indexes() {
			statements = append(statements, dialect.CreateIndex(d, idx, true))
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create %s: %w", t.Name, err)
			}
		}
		logger.Debug("Ensured table %s", t.Name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Info("Created %d tables on %s", len(tables), b.url.Redacted())
	return nil
}

// withConnection opens a fresh engine on the main section with no pooling,
// checks out a single connection and releases both once fn returns
func (b *Bootstrapper) withConnection(ctx context.Context, fn func(ctx context.Context, conn *database.Connection) error) error {
	if b.url == nil {
		return fmt.Errorf("bootstrapper is not initialized")
	}

	timeout, err := b.opts.Config.ConnectTimeout()
	if err != nil {
		return err
	}

	engine, err := b.openEngine(b.opts.Config.MainSectionOptions(), EnginePrefix, database.Options{
		Pool:           database.NullPool,
		ConnectTimeout: timeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = engine.Dispose()
		b.stats = engine.Stats()
	}()

	conn, err := engine.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return fn(ctx, conn)
}
