package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const (
	// MainSection is the section holding the tool's own options
	MainSection = "stackmig"
	// LoggingSection configures internal/logger
	LoggingSection = "logging"

	// DefaultPath is the config file looked up when none is given
	DefaultPath = "stackmig.ini"
	// DefaultVersionTable stores the current revision
	DefaultVersionTable = "stackmig_version"
)

// Config is the tool configuration loaded from an .ini file
type Config struct {
	path string
	file *ini.File
}

// LoggingConfig holds the [logging] section
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration file at path. A missing file is an error; use
// New for an empty configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         false,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &Config{path: path, file: file}, nil
}

// New returns an empty configuration that is not backed by a file
func New() *Config {
	return &Config{file: ini.Empty()}
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// GetMainOption returns an option of the main section, or def when unset
func (c *Config) GetMainOption(name, def string) string {
	sec := c.file.Section(MainSection)
	if !sec.HasKey(name) {
		return def
	}
	value := strings.TrimSpace(sec.Key(name).String())
	if value == "" {
		return def
	}
	return value
}

// SetMainOption sets an option of the main section
func (c *Config) SetMainOption(name, value string) {
	c.file.Section(MainSection).Key(name).SetValue(value)
}

// GetSection returns a copy of a section's options. Unknown sections yield an
// empty map.
func (c *Config) GetSection(name string) map[string]string {
	result := make(map[string]string)
	sec, err := c.file.GetSection(name)
	if err != nil {
		return result
	}
	for k, v := range sec.KeysHash() {
		result[k] = v
	}
	return result
}

// MainSectionOptions returns a copy of the main section
func (c *Config) MainSectionOptions() map[string]string {
	return c.GetSection(MainSection)
}

// VersionTable returns the configured version table name
func (c *Config) VersionTable() string {
	return c.GetMainOption("version_table", DefaultVersionTable)
}

// ScriptLocation returns the directory where revision files are written
func (c *Config) ScriptLocation() string {
	return c.GetMainOption("script_location", "migrations/versions")
}

// Logging returns the [logging] section
func (c *Config) Logging() LoggingConfig {
	sec := c.GetSection(LoggingSection)
	return LoggingConfig{
		Level:  sec["level"],
		Format: sec["format"],
	}
}

// Settings are the application's environment-derived database settings
type Settings struct {
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBPoolSize    int    `mapstructure:"DB_POOL_SIZE"`
	DBMaxOverflow int    `mapstructure:"DB_MAX_OVERFLOW"`
	DBPoolRecycle int    `mapstructure:"DB_POOL_RECYCLE"` // seconds
}

// PoolRecycle returns DBPoolRecycle as a duration
func (s *Settings) PoolRecycle() time.Duration {
	return time.Duration(s.DBPoolRecycle) * time.Second
}

// LoadSettings loads Settings from the environment
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_POOL_SIZE", 50)
	v.SetDefault("DB_MAX_OVERFLOW", 50)
	v.SetDefault("DB_POOL_RECYCLE", 1800)
	v.AutomaticEnv()

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if settings.DBPoolSize < 0 {
		return nil, fmt.Errorf("DB_POOL_SIZE must not be negative: %d", settings.DBPoolSize)
	}
	if settings.DBMaxOverflow < 0 {
		return nil, fmt.Errorf("DB_MAX_OVERFLOW must not be negative: %d", settings.DBMaxOverflow)
	}

	return settings, nil
}

// ConnectTimeout parses the main option db.connect_timeout (seconds)
func (c *Config) ConnectTimeout() (time.Duration, error) {
	raw := c.GetMainOption("db.connect_timeout", "")
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid db.connect_timeout %q: %w", raw, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
