package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration from defaults, files and the environment.
type Loader struct {
	userDir    string
	projectDir string
	file       string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithUserDir overrides the user config directory (~/.famplan).
func WithUserDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.userDir = dir
	}
}

// WithConfigFile adds an explicit config file applied after the project
// config. A missing explicit file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.file = path
	}
}

// NewLoader creates a loader rooted at projectDir.
func NewLoader(projectDir string, opts ...LoaderOption) *Loader {
	l := &Loader{projectDir: projectDir}
	if home, err := os.UserHomeDir(); err == nil {
		l.userDir = filepath.Join(home, Dir)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProjectDir returns the directory relative paths resolve against.
func (l *Loader) ProjectDir() string {
	return l.projectDir
}

// Load loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.famplan/config.yaml) - optional
//  3. Project config (.famplan/config.yaml) - optional
//  4. Explicit config file (--config)
//  5. Environment variables (FAMPLAN_*)
func (l *Loader) Load() (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	if l.userDir != "" {
		userPath := filepath.Join(l.userDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := ProjectConfigPath(l.projectDir)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	if l.file != "" {
		if err := mergeFromFile(tc, l.file, SourceFile); err != nil {
			return nil, err
		}
	}

	ApplyEnvVars(tc)

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// mergeFromFile merges the keys present in a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	values := make(map[string]string)
	flatten("", raw, values)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := tc.Set(key, values[key], source, path); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	return nil
}

// flatten turns nested YAML maps into dotted keys. Null values are skipped.
func flatten(prefix string, raw map[string]any, out map[string]string) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
