package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolsascode/stackmig/internal/dburl"
)

func sqliteURL(t *testing.T) *dburl.URL {
	t.Helper()
	u, err := dburl.Parse("sqlite:///" + filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return u
}

func TestEngine_NullPoolClosesReleasedConnections(t *testing.T) {
	engine, err := New(sqliteURL(t), Options{Pool: NullPool})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer engine.Dispose()

	if got := engine.Stats().Connects; got != 0 {
		t.Fatalf("Connects before Connect() = %d, want 0", got)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		conn, err := engine.Connect(ctx)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if _, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS t (id INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		if err := conn.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	stats := engine.Stats()
	if stats.Connects != 2 {
		t.Errorf("Connects = %d, want 2 (no reuse)", stats.Connects)
	}
	if stats.Open != 0 {
		t.Errorf("Open = %d, want 0", stats.Open)
	}
}

func TestEngine_QueuePoolReusesConnections(t *testing.T) {
	engine, err := New(sqliteURL(t), Options{Pool: QueuePool, PoolSize: 2, MaxOverflow: 1, Recycle: time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer engine.Dispose()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		conn, err := engine.Connect(ctx)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		_ = conn.Close()
	}

	stats := engine.Stats()
	if stats.Connects != 1 {
		t.Errorf("Connects = %d, want 1", stats.Connects)
	}
	if stats.Open != 1 {
		t.Errorf("Open = %d, want 1 idle connection", stats.Open)
	}
	if got := engine.DB().Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}

func TestFromConfig(t *testing.T) {
	section := map[string]string{
		"db.url":             "sqlite:///" + filepath.Join(t.TempDir(), "app.db"),
		"db.poolclass":       "queue",
		"db.pool_size":       "4",
		"db.connect_timeout": "3",
		"script_location":    "migrations/versions",
	}

	engine, err := FromConfig(section, "db.", Options{})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	defer engine.Dispose()

	if engine.Pool() != QueuePool {
		t.Errorf("Pool() = %s, want queue", engine.Pool())
	}

	overridden, err := FromConfig(section, "db.", Options{Pool: NullPool})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	defer overridden.Dispose()

	if overridden.Pool() != NullPool {
		t.Errorf("Pool() = %s, want explicit null pool to win", overridden.Pool())
	}
	if overridden.opts.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want section value kept", overridden.opts.PoolSize)
	}
	if engine.opts.PoolSize != 4 || engine.opts.ConnectTimeout != 3*time.Second {
		t.Errorf("unexpected options: %+v", engine.opts)
	}
	if engine.Dialect().Name() != "sqlite" {
		t.Errorf("Dialect() = %s", engine.Dialect().Name())
	}
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		section map[string]string
	}{
		{name: "missing url", section: map[string]string{}},
		{name: "malformed url", section: map[string]string{"db.url": "nonsense"}},
		{name: "bad pool class", section: map[string]string{"db.url": "sqlite://", "db.poolclass": "static"}},
		{name: "bad pool size", section: map[string]string{"db.url": "sqlite://", "db.pool_size": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromConfig(tt.section, "db.", Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEngine_PostgreSQL(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	u, err := dburl.Parse(dsn)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	engine, err := New(u, Options{Pool: NullPool})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer engine.Dispose()

	conn, err := engine.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = conn.Close()

	if stats := engine.Stats(); stats.Connects != 1 || stats.Open != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}
