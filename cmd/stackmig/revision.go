package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolsascode/stackmig/internal/autogen"
	"github.com/toolsascode/stackmig/internal/env"
	"github.com/toolsascode/stackmig/internal/registry"
)

var (
	revisionMessage string
	autogenerate    bool
	revisionDir     string
)

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Create a new revision file",
	Long: `Revision writes a new Go revision file on top of the current head.

With --autogenerate the database is compared against the metadata and the
differences are written as upgrade steps. Rebuild the binary to pick up the
new revision.

Example:
  stackmig revision -m "add team invites"
  stackmig revision -m "add message images" --autogenerate
  stackmig revision -m "backfill" --dir ./migrations/versions`,
	Args: cobra.NoArgs,
	RunE: runRevision,
}

// now is replaced in tests
var now = time.Now

func init() {
	revisionCmd.Flags().StringVarP(&revisionMessage, "message", "m", "", "Revision message")
	revisionCmd.Flags().BoolVar(&autogenerate, "autogenerate", false, "Populate the revision from a database comparison")
	revisionCmd.Flags().StringVar(&revisionDir, "dir", "", "Output directory (default: script_location from the configuration)")
	_ = revisionCmd.MarkFlagRequired("message")
}

func runRevision(cmd *cobra.Command, args []string) error {
	heads := registry.GlobalRegistry.Heads()
	if len(heads) > 1 {
		return fmt.Errorf("multiple heads present: %v", heads)
	}
	var down string
	if len(heads) == 1 {
		down = heads[0]
	}

	dir := revisionDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.ScriptLocation()
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("revision directory does not exist: %s", dir)
	}

	created := now()
	file := autogen.RevisionFile{
		ID:           autogen.NewRevisionID(created),
		DownRevision: down,
		Message:      revisionMessage,
		PackageName:  sanitizePackageName(filepath.Base(filepath.Clean(dir))),
		CreatedAt:    created,
	}
	if _, exists := registry.GlobalRegistry.Get(file.ID); exists {
		return fmt.Errorf("revision %s already exists", file.ID)
	}

	if autogenerate {
		b, _, err := newBootstrapper(env.Options{})
		if err != nil {
			return err
		}
		diff, err := b.Compare(cmd.Context())
		if err != nil {
			return err
		}
		for _, line := range diff.Summary() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		file.Diff = diff
	}

	var buf bytes.Buffer
	if err := autogen.RenderRevision(&buf, file); err != nil {
		return err
	}

	path := filepath.Join(dir, file.FileName())
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generating %s ... done\n", path)
	return nil
}

var invalidPackageChars = regexp.MustCompile(`[^a-z0-9_]`)

// sanitizePackageName converts a directory name to a valid Go package name
func sanitizePackageName(name string) string {
	result := invalidPackageChars.ReplaceAllString(strings.ToLower(name), "_")

	if len(result) > 0 && result[0] >= '0' && result[0] <= '9' {
		result = "_" + result
	}
	if result == "" {
		result = "versions"
	}
	return result
}
