package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toolsascode/stackmig/internal/config"
	"github.com/toolsascode/stackmig/internal/env"
	"github.com/toolsascode/stackmig/internal/logger"
	"github.com/toolsascode/stackmig/internal/models"
	"github.com/toolsascode/stackmig/internal/registry"
	_ "github.com/toolsascode/stackmig/migrations/versions"
)

var (
	configPath string
	verbose    bool

	sqlMode      bool
	fromRevision string
	outputPath   string

	metadataFormat string
)

var rootCmd = &cobra.Command{
	Use:   "stackmig",
	Short: "stackmig - schema migrations for the application database",
	Long: `stackmig applies the application's schema revisions to its database.

Revisions live in migrations/versions and are compiled into this binary.
The database URL is read from DATABASE_URL, falling back to db.url in the
[stackmig] section of the configuration file.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.DEBUG)
		}
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [target]",
	Short: "Upgrade the database to a revision (default: head)",
	Long: `Upgrade applies every revision between the database's current revision
and the target inside a single transaction.

With --sql nothing is connected to: the upgrade is written as a SQL script.

Example:
  stackmig upgrade
  stackmig upgrade 20250115000000
  stackmig upgrade --sql > upgrade.sql
  stackmig upgrade --sql --from 20250115000000 -o upgrade.sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpgrade,
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the database's current revision",
	Args:  cobra.NoArgs,
	RunE:  runCurrent,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List revisions in order",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var headsCmd = &cobra.Command{
	Use:   "heads",
	Short: "Show the head revisions",
	Args:  cobra.NoArgs,
	RunE:  runHeads,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fail when the database differs from the metadata",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print the target metadata",
	Args:  cobra.NoArgs,
	RunE:  runMetadata,
}

var createAllCmd = &cobra.Command{
	Use:   "create-all",
	Short: "Create every metadata table that does not exist, without revisions",
	Long: `create-all creates the metadata's tables and indexes directly, skipping
those that already exist. The version table is not touched. Pool sizing is
read from DB_POOL_SIZE, DB_MAX_OVERFLOW and DB_POOL_RECYCLE.`,
	Args: cobra.NoArgs,
	RunE: runCreateAll,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stackmig version %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	upgradeCmd.Flags().BoolVar(&sqlMode, "sql", false, "Write SQL instead of connecting to the database")
	upgradeCmd.Flags().StringVar(&fromRevision, "from", "", "Revision the database is assumed to be at (--sql only)")
	upgradeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the SQL script to a file instead of stdout")

	metadataCmd.Flags().StringVarP(&metadataFormat, "format", "f", "yaml", "Output format: yaml or json")

	rootCmd.AddCommand(upgradeCmd, currentCmd, historyCmd, headsCmd, revisionCmd, checkCmd, metadataCmd, createAllCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file. A missing file at the default path
// yields an empty configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil && configPath == config.DefaultPath && errors.Is(err, fs.ErrNotExist) {
		logger.Debug("No %s found, using defaults", configPath)
		return config.New(), nil
	}
	return cfg, err
}

// newBootstrapper loads the configuration and settings and initializes a
// bootstrapper for the application metadata
func newBootstrapper(opts env.Options) (*env.Bootstrapper, *config.Settings, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}

	opts.Config = cfg
	opts.DatabaseURL = settings.DatabaseURL
	opts.Metadata = models.Metadata()

	b, err := env.New(opts)
	if err != nil {
		return nil, nil, err
	}
	if err := b.Initialize(); err != nil {
		return nil, nil, err
	}
	// the command line wins over [logging]
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}
	return b, settings, nil
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	target := registry.Head
	if len(args) > 0 {
		target = args[0]
	}
	if fromRevision != "" && !sqlMode {
		return fmt.Errorf("--from is only supported with --sql")
	}
	if outputPath != "" && !sqlMode {
		return fmt.Errorf("--output is only supported with --sql")
	}

	mode := env.ModeOnline
	var out io.Writer = cmd.OutOrStdout()
	if sqlMode {
		mode = env.ModeOffline
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outputPath, err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
	}

	b, _, err := newBootstrapper(env.Options{
		Output:           out,
		Target:           target,
		StartingRevision: fromRevision,
	})
	if err != nil {
		return err
	}

	return b.Run(cmd.Context(), mode)
}

func runCurrent(cmd *cobra.Command, args []string) error {
	b, _, err := newBootstrapper(env.Options{})
	if err != nil {
		return err
	}

	current, err := b.Current(cmd.Context())
	if err != nil {
		return err
	}
	if current == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "<base>")
		return nil
	}

	label := current
	for _, head := range registry.GlobalRegistry.Heads() {
		if head == current {
			label += " (head)"
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), label)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	revisions, err := registry.GlobalRegistry.GetAll()
	if err != nil {
		return err
	}

	heads := make(map[string]bool)
	for _, head := range registry.GlobalRegistry.Heads() {
		heads[head] = true
	}

	// newest first
	for i := len(revisions) - 1; i >= 0; i-- {
		rev := revisions[i]
		down := rev.DownRevision
		if down == "" {
			down = "<base>"
		}
		line := fmt.Sprintf("%s -> %s", down, rev.ID)
		if heads[rev.ID] {
			line += " (head)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s, %s\n", line, rev.Message)
	}
	return nil
}

func runHeads(cmd *cobra.Command, args []string) error {
	for _, head := range registry.GlobalRegistry.Heads() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (head)\n", head)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	b, _, err := newBootstrapper(env.Options{})
	if err != nil {
		return err
	}

	diff, err := b.Compare(cmd.Context())
	if err != nil {
		return err
	}
	if !diff.Empty() {
		return fmt.Errorf("new upgrade operations detected:\n  %s", strings.Join(diff.Summary(), "\n  "))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "No new upgrade operations detected.")
	return nil
}

func runMetadata(cmd *cobra.Command, args []string) error {
	description := models.Metadata().Describe()
	out := cmd.OutOrStdout()

	switch strings.ToLower(metadataFormat) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(description); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(description); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (expected yaml or json)", metadataFormat)
	}
}

func runCreateAll(cmd *cobra.Command, args []string) error {
	b, settings, err := newBootstrapper(env.Options{})
	if err != nil {
		return err
	}
	return b.CreateAll(cmd.Context(), settings)
}
