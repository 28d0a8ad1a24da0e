package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tc, err := NewLoader(dir, WithUserDir(filepath.Join(dir, "home"))).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), tc.Config)
	for _, key := range Keys() {
		assert.Equal(t, SourceDefault, tc.GetSource(key), key)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	userDir := filepath.Join(dir, "home")

	writeFile(t, filepath.Join(userDir, ConfigFileName), `
content:
  dir: user-docs
sync:
  mode: replace
watch:
  debounce_ms: 100
`)
	writeFile(t, ProjectConfigPath(dir), `
content:
  dir: family
  pattern: "**/*.md"
timezone:
  default: Europe/Berlin
`)
	explicit := filepath.Join(dir, "override.yaml")
	writeFile(t, explicit, "watch:\n  debounce_ms: 900\nlog:\n  level: debug\n")
	t.Setenv("FAMPLAN_LOG_LEVEL", "warn")

	tc, err := NewLoader(dir, WithUserDir(userDir), WithConfigFile(explicit)).Load()
	require.NoError(t, err)

	cfg := tc.Config
	assert.Equal(t, "family", cfg.Content.Dir)
	assert.Equal(t, "**/*.md", cfg.Content.Pattern)
	assert.Equal(t, "replace", cfg.Sync.Mode)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone.Default)
	assert.Equal(t, 900, cfg.Watch.DebounceMS)
	assert.Equal(t, "warn", cfg.Log.Level)

	assert.Equal(t, TrackedSource{Source: SourceProject, Path: ProjectConfigPath(dir)}, tc.GetTrackedSource("content.dir"))
	assert.Equal(t, SourceUser, tc.GetSource("sync.mode"))
	assert.Equal(t, SourceFile, tc.GetSource("watch.debounce_ms"))
	assert.Equal(t, TrackedSource{Source: SourceEnv, Path: "FAMPLAN_LOG_LEVEL"}, tc.GetTrackedSource("log.level"))
	assert.Equal(t, SourceDefault, tc.GetSource("database.driver"))
	assert.Equal(t, "env: FAMPLAN_LOG_LEVEL", tc.GetTrackedSource("log.level").String())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		project string
	}{
		{"malformed yaml", "content: [dir\n"},
		{"unknown key", "content:\n  folder: x\n"},
		{"bad integer", "watch:\n  debounce_ms: soon\n"},
		{"invalid value", "database:\n  driver: oracle\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, ProjectConfigPath(dir), tt.project)
			_, err := NewLoader(dir, WithUserDir(filepath.Join(dir, "home"))).Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadUserConfigIsIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	userDir := filepath.Join(dir, "home")
	writeFile(t, filepath.Join(userDir, ConfigFileName), "content: [\n")

	tc, err := NewLoader(dir, WithUserDir(userDir)).Load()
	require.NoError(t, err)
	assert.Equal(t, "content/todos", tc.Config.Content.Dir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := NewLoader(dir, WithUserDir(dir), WithConfigFile(filepath.Join(dir, "nope.yaml"))).Load()
	assert.Error(t, err)
}

func TestApplyEnvVars(t *testing.T) {
	t.Setenv("FAMPLAN_DATABASE_DRIVER", "postgres")
	t.Setenv("FAMPLAN_DATABASE_DSN", "postgres://db/famplan")
	t.Setenv("FAMPLAN_WATCH_DEBOUNCE_MS", "later")

	tc := NewTrackedConfig()
	overridden := ApplyEnvVars(tc)
	assert.Equal(t, []string{"database.driver", "database.dsn"}, overridden)
	assert.Equal(t, "postgres", tc.Config.Database.Driver)
	assert.Equal(t, 500, tc.Config.Watch.DebounceMS, "unparseable values are skipped")

	entries := tc.Entries()
	require.Len(t, entries, len(Keys()))
	for _, e := range entries {
		if e.Key == "database.dsn" {
			assert.Equal(t, "********", e.Value)
			assert.Equal(t, SourceEnv, e.Source.Source)
		}
	}
}
