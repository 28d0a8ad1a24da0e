// Package config provides configuration management for famplan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/famplan/internal/db/driver"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/fsutil"
	"github.com/randalmurphal/famplan/internal/recurrence"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// Dir is the famplan configuration directory
	Dir = ".famplan"
)

// ContentConfig locates the member documents.
type ContentConfig struct {
	// Dir holds the markdown documents, relative to the project root.
	Dir string `yaml:"dir"`
	// Pattern is a doublestar glob relative to Dir.
	Pattern string `yaml:"pattern"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite file, relative to the project root.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// SyncConfig controls reconciliation.
type SyncConfig struct {
	// Mode is "preserve" (default) or "replace".
	Mode string `yaml:"mode"`
}

// TimezoneConfig holds timezone defaults.
type TimezoneConfig struct {
	Default string `yaml:"default"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// LogConfig controls the CLI log handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Config represents the famplan configuration.
type Config struct {
	Content  ContentConfig  `yaml:"content"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Timezone TimezoneConfig `yaml:"timezone"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Content: ContentConfig{
			Dir:     "content/todos",
			Pattern: "*.md",
		},
		Database: DatabaseConfig{
			Driver: string(driver.DialectSQLite),
			Path:   filepath.Join(Dir, "famplan.db"),
		},
		Sync:     SyncConfig{Mode: "preserve"},
		Timezone: TimezoneConfig{Default: "UTC"},
		Watch:    WatchConfig{DebounceMS: 500},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	switch driver.Dialect(c.Database.Driver) {
	case driver.DialectSQLite:
		if c.Database.Path == "" {
			return ferrors.ErrConfigInvalid("database.path", "required for the sqlite driver")
		}
	case driver.DialectPostgres:
		if c.Database.DSN == "" {
			return ferrors.ErrConfigInvalid("database.dsn", "required for the postgres driver")
		}
	default:
		return ferrors.ErrConfigInvalid("database.driver", fmt.Sprintf("unknown driver %q (want sqlite or postgres)", c.Database.Driver))
	}
	switch c.Sync.Mode {
	case "", "preserve", "replace":
	default:
		return ferrors.ErrConfigInvalid("sync.mode", fmt.Sprintf("unknown mode %q (want preserve or replace)", c.Sync.Mode))
	}
	if c.Content.Dir == "" {
		return ferrors.ErrConfigInvalid("content.dir", "must not be empty")
	}
	if c.Timezone.Default != "" && !recurrence.ValidTimezone(c.Timezone.Default) {
		return ferrors.ErrConfigInvalid("timezone.default", fmt.Sprintf("unknown timezone %q", c.Timezone.Default))
	}
	if c.Watch.DebounceMS < 0 {
		return ferrors.ErrConfigInvalid("watch.debounce_ms", "must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return ferrors.ErrConfigInvalid("log.format", fmt.Sprintf("unknown format %q (want text or json)", c.Log.Format))
	}
	return nil
}

// ContentPath returns the content directory resolved against projectDir.
func (c *Config) ContentPath(projectDir string) string {
	return resolve(projectDir, c.Content.Dir)
}

// StoreDSN returns the dialect and connection string for the store.
// SQLite paths are resolved against projectDir.
func (c *Config) StoreDSN(projectDir string) (driver.Dialect, string) {
	dialect := driver.Dialect(c.Database.Driver)
	if dialect == driver.DialectPostgres {
		return dialect, c.Database.DSN
	}
	return driver.DialectSQLite, resolve(projectDir, c.Database.Path)
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// LoadFrom loads config from a specific file over the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo writes config to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ProjectConfigPath returns the project config file under projectDir.
func ProjectConfigPath(projectDir string) string {
	return filepath.Join(projectDir, Dir, ConfigFileName)
}

// Init writes a default project config in projectDir. An existing file is
// kept unless force is set. It reports whether a file was written.
func Init(projectDir string, force bool) (bool, error) {
	path := ProjectConfigPath(projectDir)
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := Default().SaveTo(path); err != nil {
		return false, err
	}
	return true, nil
}
