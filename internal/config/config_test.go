package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/famplan/internal/db/driver"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "content/todos", cfg.Content.Dir)
	assert.Equal(t, "*.md", cfg.Content.Pattern)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(".famplan", "famplan.db"), cfg.Database.Path)
	assert.Equal(t, "preserve", cfg.Sync.Mode)
	assert.Equal(t, "UTC", cfg.Timezone.Default)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad mode", func(c *Config) { c.Sync.Mode = "merge" }, "sync.mode"},
		{"empty content dir", func(c *Config) { c.Content.Dir = "" }, "content.dir"},
		{"bad timezone", func(c *Config) { c.Timezone.Default = "Mars/Base" }, "timezone.default"},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMS = -1 }, "watch.debounce_ms"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			fe := ferrors.AsFamplanError(err)
			require.NotNil(t, fe)
			assert.Equal(t, ferrors.CodeConfigInvalid, fe.Code)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestStoreDSN(t *testing.T) {
	cfg := Default()
	dialect, dsn := cfg.StoreDSN("/proj")
	assert.Equal(t, driver.DialectSQLite, dialect)
	assert.Equal(t, filepath.Join("/proj", ".famplan", "famplan.db"), dsn)

	cfg.Database.Path = "/var/lib/famplan.db"
	_, dsn = cfg.StoreDSN("/proj")
	assert.Equal(t, "/var/lib/famplan.db", dsn)

	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://localhost/famplan"
	dialect, dsn = cfg.StoreDSN("/proj")
	assert.Equal(t, driver.DialectPostgres, dialect)
	assert.Equal(t, "postgres://localhost/famplan", dsn)

	assert.Equal(t, filepath.Join("/proj", "content", "todos"), Default().ContentPath("/proj"))
}

func TestValues(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.SetValue("watch.debounce_ms", "250"))
	assert.Equal(t, 250, cfg.Watch.DebounceMS)
	v, err := cfg.GetValue("watch.debounce_ms")
	require.NoError(t, err)
	assert.Equal(t, "250", v)

	require.NoError(t, cfg.SetValue("content.dir", "docs"))
	assert.Equal(t, "docs", cfg.Content.Dir)

	assert.Error(t, cfg.SetValue("watch.debounce_ms", "soon"))
	assert.Error(t, cfg.SetValue("content", "x"))
	assert.Error(t, cfg.SetValue("nope.key", "x"))
	_, err = cfg.GetValue("content.dir.extra")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{
		"content.dir", "content.pattern",
		"database.driver", "database.path", "database.dsn",
		"sync.mode", "timezone.default", "watch.debounce_ms",
		"log.level", "log.format",
	}, Keys())
	assert.Equal(t, "FAMPLAN_WATCH_DEBOUNCE_MS", EnvVarName("watch.debounce_ms"))
	assert.Equal(t, "content.dir", EnvVarMapping()["FAMPLAN_CONTENT_DIR"])
}

func TestSaveAndLoadFrom(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Sync.Mode = "replace"
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestInit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	wrote, err := Init(dir, false)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.FileExists(t, ProjectConfigPath(dir))

	wrote, err = Init(dir, false)
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = Init(dir, true)
	require.NoError(t, err)
	assert.True(t, wrote)
}
