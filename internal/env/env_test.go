package env

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/toolsascode/stackmig/internal/config"
	"github.com/toolsascode/stackmig/internal/database"
	"github.com/toolsascode/stackmig/internal/models"
	"github.com/toolsascode/stackmig/internal/ops"
	"github.com/toolsascode/stackmig/internal/registry"
	_ "github.com/toolsascode/stackmig/migrations/versions"
)

const (
	initialRevision = "20250115000000"
	headRevision    = "20250201000000"
)

// countingOpener wraps database.FromConfig and records every engine it opens
type countingOpener struct {
	calls   int
	engines []*database.Engine
}

func (o *countingOpener) open(section map[string]string, prefix string, overrides database.Options) (*database.Engine, error) {
	o.calls++
	engine, err := database.FromConfig(section, prefix, overrides)
	if err != nil {
		return nil, err
	}
	o.engines = append(o.engines, engine)
	return engine, nil
}

func newBootstrapper(t *testing.T, databaseURL string, out *bytes.Buffer) (*Bootstrapper, *countingOpener) {
	t.Helper()
	b, err := New(Options{
		Config:      config.New(),
		DatabaseURL: databaseURL,
		Metadata:    models.Metadata(),
		Output:      out,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	opener := &countingOpener{}
	b.openEngine = opener.open
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return b, opener
}

func sqliteURL(t *testing.T) string {
	t.Helper()
	return "sqlite:///" + filepath.Join(t.TempDir(), "app.db")
}

func TestNew_RequiresConfigAndMetadata(t *testing.T) {
	if _, err := New(Options{Metadata: models.Metadata()}); err == nil {
		t.Error("expected error without configuration")
	}
	if _, err := New(Options{Config: config.New()}); err == nil {
		t.Error("expected error without metadata")
	}
}

func TestInitialize_WritesURLIntoConfig(t *testing.T) {
	cfg := config.New()
	cfg.SetMainOption(URLOption, "sqlite://")

	b, err := New(Options{Config: cfg, DatabaseURL: "postgresql://u:p@localhost/testdb", Metadata: models.Metadata()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := cfg.GetMainOption(URLOption, ""); got != "postgresql://u:p@localhost/testdb" {
		t.Errorf("db.url = %q", got)
	}
	if b.URL().Database != "testdb" {
		t.Errorf("URL().Database = %q", b.URL().Database)
	}
}

func TestInitialize_MalformedURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "no scheme", url: "localhost/testdb"},
		{name: "unsupported dialect", url: "mysql://u:p@localhost/testdb"},
		{name: "bad port", url: "postgresql://u:p@localhost:abc/testdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(Options{Config: config.New(), DatabaseURL: tt.url, Metadata: models.Metadata()})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			opener := &countingOpener{}
			b.openEngine = opener.open

			if err := b.Initialize(); err == nil {
				t.Fatal("expected Initialize() error")
			}
			if err := b.Run(context.Background(), ModeOnline); err == nil {
				t.Error("expected Run() to fail when not initialized")
			}
			if opener.calls != 0 {
				t.Errorf("engine opened %d times, want 0", opener.calls)
			}
		})
	}
}

func TestInitialize_BlankOverrideKeepsConfiguredURL(t *testing.T) {
	tests := []struct {
		name     string
		override string
		want     string
	}{
		{name: "empty", override: "", want: "sqlite:///app.db"},
		{name: "whitespace", override: "   ", want: "sqlite:///app.db"},
		{name: "padded", override: "  postgresql://u:p@localhost/testdb\n", want: "postgresql://u:p@localhost/testdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.SetMainOption(URLOption, "sqlite:///app.db")

			b, err := New(Options{Config: cfg, DatabaseURL: tt.override, Metadata: models.Metadata()})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if err := b.Initialize(); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if got := cfg.GetMainOption(URLOption, ""); got != tt.want {
				t.Errorf("db.url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInitialize_NoURL(t *testing.T) {
	b, err := New(Options{Config: config.New(), Metadata: models.Metadata()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Initialize(); err == nil {
		t.Error("expected error without a database URL")
	}
}

var createTableRe = regexp.MustCompile(`(?m)^CREATE TABLE "([a-z_]+)"`)

func TestRunOffline(t *testing.T) {
	var out bytes.Buffer
	b, opener := newBootstrapper(t, "postgresql://u:p@localhost/testdb", &out)

	if err := b.Run(context.Background(), ModeOffline); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if opener.calls != 0 {
		t.Errorf("engine opened %d times offline, want 0", opener.calls)
	}

	script := out.String()
	if script == "" {
		t.Fatal("expected a non-empty script")
	}
	if !strings.HasPrefix(script, "BEGIN;") || !strings.HasSuffix(strings.TrimSpace(script), "COMMIT;") {
		t.Errorf("script is not wrapped in a transaction:\n%s", script)
	}

	md := models.Metadata()
	matches := createTableRe.FindAllStringSubmatch(script, -1)
	if len(matches) != len(md.Tables())+1 {
		t.Errorf("created %d tables, want %d", len(matches), len(md.Tables())+1)
	}
	for _, m := range matches {
		if m[1] != config.DefaultVersionTable && !md.Has(m[1]) {
			t.Errorf("script creates %q, which is not a metadata table", m[1])
		}
	}

	for _, fragment := range []string{
		"-- Running upgrade <base> -> " + initialRevision,
		"-- Running upgrade " + initialRevision + " -> " + headRevision,
		`ALTER TABLE "messages" ADD COLUMN "images" VARCHAR[]`,
		"INSERT INTO \"stackmig_version\" (version_num) VALUES ('" + initialRevision + "')",
	} {
		if !strings.Contains(script, fragment) {
			t.Errorf("script missing %q", fragment)
		}
	}
	if strings.Contains(script, ":version_num") || strings.Contains(script, "$1") {
		t.Errorf("script contains unrendered parameters:\n%s", script)
	}

	result := b.Result()
	if result.To != headRevision || len(result.Applied) != 2 {
		t.Errorf("Result() = %+v", result)
	}
}

func TestRunOffline_StartingRevision(t *testing.T) {
	var out bytes.Buffer
	b, err := New(Options{
		Config:           config.New(),
		DatabaseURL:      "postgresql://u:p@localhost/testdb",
		Metadata:         models.Metadata(),
		Output:           &out,
		StartingRevision: initialRevision,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := b.RunOffline(context.Background()); err != nil {
		t.Fatalf("RunOffline() error = %v", err)
	}
	script := out.String()
	if strings.Contains(script, `CREATE TABLE "users"`) {
		t.Error("starting revision should skip the initial schema")
	}
	if !strings.Contains(script, `ALTER TABLE "messages"`) {
		t.Errorf("expected the images revision:\n%s", script)
	}
}

func TestRunOnline_SQLite(t *testing.T) {
	ctx := context.Background()
	b, opener := newBootstrapper(t, sqliteURL(t), nil)

	if err := b.Run(ctx, ModeOnline); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if opener.calls != 1 {
		t.Errorf("engine opened %d times, want 1", opener.calls)
	}
	stats := b.EngineStats()
	if stats.Connects != 1 {
		t.Errorf("Connects = %d, want 1", stats.Connects)
	}
	if stats.Open != 0 {
		t.Errorf("Open = %d, want 0 after the run", stats.Open)
	}
	if opener.engines[0].Pool() != database.NullPool {
		t.Errorf("Pool() = %s, want null", opener.engines[0].Pool())
	}

	result := b.Result()
	if !result.Committed || result.To != headRevision || len(result.Applied) != 2 {
		t.Errorf("Result() = %+v", result)
	}

	current, err := b.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current != headRevision {
		t.Errorf("Current() = %q, want %q", current, headRevision)
	}

	// already at head
	if err := b.RunOnline(ctx); err != nil {
		t.Fatalf("second RunOnline() error = %v", err)
	}
	if applied := b.Result().Applied; len(applied) != 0 {
		t.Errorf("second run applied %v", applied)
	}

	diff, err := b.Compare(ctx)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !diff.Empty() {
		t.Errorf("expected no differences after upgrade head, got %v", diff.Summary())
	}
}

func TestRunOnline_Target(t *testing.T) {
	ctx := context.Background()
	b, err := New(Options{
		Config:      config.New(),
		DatabaseURL: sqliteURL(t),
		Metadata:    models.Metadata(),
		Target:      initialRevision,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := b.RunOnline(ctx); err != nil {
		t.Fatalf("RunOnline() error = %v", err)
	}
	current, err := b.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current != initialRevision {
		t.Errorf("Current() = %q, want %q", current, initialRevision)
	}

	diff, err := b.Compare(ctx)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(diff.AddColumns) != 1 || diff.AddColumns[0].Column.Name != "images" {
		t.Errorf("AddColumns = %+v, want messages.images", diff.AddColumns)
	}
}

func TestRunOnline_PropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	reg := registry.NewInMemoryRegistry()
	if err := reg.Register(&registry.Revision{
		ID:      initialRevision,
		Message: "fails",
		Upgrade: func(ctx context.Context, op *ops.Operations) error {
			return boom
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	b, err := New(Options{Config: config.New(), DatabaseURL: sqliteURL(t), Metadata: models.Metadata(), Registry: reg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	opener := &countingOpener{}
	b.openEngine = opener.open
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	err = b.RunOnline(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("RunOnline() error = %v, want %v", err, boom)
	}
	if b.Result().Committed {
		t.Error("failed run must not commit")
	}
	if stats := b.EngineStats(); stats.Open != 0 {
		t.Errorf("Open = %d, want 0 after a failed run", stats.Open)
	}
}

func TestRun_ModeExclusivity(t *testing.T) {
	var out bytes.Buffer
	b, opener := newBootstrapper(t, sqliteURL(t), &out)

	if err := b.Run(context.Background(), ModeOffline); err != nil {
		t.Fatalf("Run(offline) error = %v", err)
	}
	if opener.calls != 0 || out.Len() == 0 {
		t.Errorf("offline run: engine opens = %d, script bytes = %d", opener.calls, out.Len())
	}

	out.Reset()
	if err := b.Run(context.Background(), ModeOnline); err != nil {
		t.Fatalf("Run(online) error = %v", err)
	}
	if opener.calls != 1 || out.Len() != 0 {
		t.Errorf("online run: engine opens = %d, script bytes = %d", opener.calls, out.Len())
	}
}

func TestCreateAll(t *testing.T) {
	ctx := context.Background()
	b, _ := newBootstrapper(t, sqliteURL(t), nil)
	settings := &config.Settings{DBPoolSize: 2, DBMaxOverflow: 1, DBPoolRecycle: 60}

	if err := b.CreateAll(ctx, settings); err != nil {
		t.Fatalf("CreateAll() error = %v", err)
	}
	// tables already exist
	if err := b.CreateAll(ctx, settings); err != nil {
		t.Fatalf("second CreateAll() error = %v", err)
	}

	diff, err := b.Compare(ctx)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !diff.Empty() {
		t.Errorf("expected every table to exist, got %v", diff.Summary())
	}

	if err := b.CreateAll(ctx, nil); err == nil {
		t.Error("expected error without settings")
	}
}

func TestModeString(t *testing.T) {
	if ModeOffline.String() != "offline" || ModeOnline.String() != "online" {
		t.Error("unexpected Mode.String()")
	}
}
