package main

import (
	"bytes"
	"encoding/json"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toolsascode/stackmig/internal/config"
)

const headRevision = "20250201000000"

// execute runs the root command with args against a fresh flag state
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath = config.DefaultPath
	verbose = false
	sqlMode = false
	fromRevision = ""
	outputPath = ""
	metadataFormat = "yaml"
	revisionMessage = ""
	autogenerate = false
	revisionDir = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "stackmig.ini")
	content := "[stackmig]\nscript_location = " + dir + "\nversion_table = stackmig_version\n\n[logging]\nlevel = WARN\nformat = text\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "stackmig version 1.0.0") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryAndHeads(t *testing.T) {
	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("history printed %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "20250115000000 -> "+headRevision+" (head), ") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "<base> -> 20250115000000, ") {
		t.Errorf("second line = %q", lines[1])
	}

	out, err = execute(t, "heads")
	if err != nil {
		t.Fatalf("heads error = %v", err)
	}
	if strings.TrimSpace(out) != headRevision+" (head)" {
		t.Errorf("heads = %q", out)
	}
}

func TestMetadataCommand(t *testing.T) {
	out, err := execute(t, "metadata")
	if err != nil {
		t.Fatalf("metadata error = %v", err)
	}
	if !strings.Contains(out, "name: users") || !strings.Contains(out, "name: team_credit_purchases") {
		t.Errorf("yaml output missing tables:\n%s", out)
	}

	out, err = execute(t, "metadata", "--format", "json")
	if err != nil {
		t.Fatalf("metadata --format json error = %v", err)
	}
	var decoded struct {
		Tables []struct {
			Name string `json:"name"`
		} `json:"tables"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded.Tables) != 10 {
		t.Errorf("decoded %d tables, want 10", len(decoded.Tables))
	}

	if _, err := execute(t, "metadata", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestUpgradeSQL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "postgresql://u:p@localhost/testdb")
	script := filepath.Join(dir, "upgrade.sql")

	if _, err := execute(t, "-c", writeConfig(t, dir), "upgrade", "--sql", "-o", script); err != nil {
		t.Fatalf("upgrade --sql error = %v", err)
	}

	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, fragment := range []string{"BEGIN;", `CREATE TABLE "users"`, "COMMIT;"} {
		if !strings.Contains(string(data), fragment) {
			t.Errorf("script missing %q", fragment)
		}
	}
}

func TestUpgradeFlagValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://u:p@localhost/testdb")

	if _, err := execute(t, "upgrade", "--from", "20250115000000"); err == nil {
		t.Error("expected --from to require --sql")
	}
	if _, err := execute(t, "upgrade", "-o", "upgrade.sql"); err == nil {
		t.Error("expected --output to require --sql")
	}
}

func TestUpgradeOnline(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(dir, "app.db"))

	out, err := execute(t, "-c", cfgPath, "current")
	if err != nil {
		t.Fatalf("current error = %v", err)
	}
	if strings.TrimSpace(out) != "<base>" {
		t.Errorf("current before upgrade = %q", out)
	}

	if _, err := execute(t, "-c", cfgPath, "check"); err == nil {
		t.Error("expected check to fail on an empty database")
	}

	if _, err := execute(t, "-c", cfgPath, "upgrade"); err != nil {
		t.Fatalf("upgrade error = %v", err)
	}

	out, err = execute(t, "-c", cfgPath, "current")
	if err != nil {
		t.Fatalf("current error = %v", err)
	}
	if strings.TrimSpace(out) != headRevision+" (head)" {
		t.Errorf("current after upgrade = %q", out)
	}

	out, err = execute(t, "-c", cfgPath, "check")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out, "No new upgrade operations detected.") {
		t.Errorf("check = %q", out)
	}
}

func TestCreateAllCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(dir, "app.db"))
	t.Setenv("DB_POOL_SIZE", "2")

	if _, err := execute(t, "-c", cfgPath, "create-all"); err != nil {
		t.Fatalf("create-all error = %v", err)
	}
	if _, err := execute(t, "-c", cfgPath, "check"); err != nil {
		t.Errorf("check after create-all error = %v", err)
	}
}

func TestRevisionCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { now = time.Now }()

	out, err := execute(t, "-c", cfgPath, "revision", "-m", "Add team invite expiry")
	if err != nil {
		t.Fatalf("revision error = %v", err)
	}

	path := filepath.Join(dir, "20250301120000_add_team_invite_expiry.go")
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want it to name %s", out, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), path, data, parser.AllErrors); err != nil {
		t.Fatalf("generated revision does not parse: %v", err)
	}
	source := string(data)
	if !strings.Contains(source, "// Revises: "+headRevision) {
		t.Errorf("revision does not build on head:\n%s", source)
	}
	if !strings.Contains(source, "package "+sanitizePackageName(filepath.Base(dir))) {
		t.Errorf("revision package does not match its directory:\n%s", source)
	}
}

func TestRevisionCommand_MissingDir(t *testing.T) {
	if _, err := execute(t, "revision", "-m", "x", "--dir", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestSanitizePackageName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "versions", want: "versions"},
		{in: "Schema-Versions", want: "schema_versions"},
		{in: "001", want: "_001"},
		{in: "", want: "versions"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizePackageName(tt.in); got != tt.want {
				t.Errorf("sanitizePackageName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
