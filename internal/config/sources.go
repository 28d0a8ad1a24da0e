package config

import "fmt"

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = "default"
	// SourceUser indicates the user config (~/.famplan/config.yaml).
	SourceUser ConfigSource = "user"
	// SourceProject indicates the project config (.famplan/config.yaml).
	SourceProject ConfigSource = "project"
	// SourceFile indicates a file passed with --config.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates an environment variable override.
	SourceEnv ConfigSource = "env"
	// SourceFlag indicates a CLI flag override.
	SourceFlag ConfigSource = "flag"
)

// TrackedSource contains both the source type and the file path or
// variable name that set a value.
type TrackedSource struct {
	Source ConfigSource `json:"source"`
	Path   string       `json:"path,omitempty"`
}

// String returns a human-readable source description.
func (ts TrackedSource) String() string {
	if ts.Path == "" {
		return string(ts.Source)
	}
	return fmt.Sprintf("%s: %s", ts.Source, ts.Path)
}

// TrackedConfig wraps a Config with source tracking.
type TrackedConfig struct {
	// Config is the merged configuration.
	Config *Config

	// Sources maps config paths to where their value came from.
	// Examples: "content.dir" -> project, "database.dsn" -> env
	Sources map[string]TrackedSource
}

// NewTrackedConfig creates a new TrackedConfig with defaults, every key
// attributed to SourceDefault.
func NewTrackedConfig() *TrackedConfig {
	tc := &TrackedConfig{
		Config:  Default(),
		Sources: make(map[string]TrackedSource),
	}
	for _, key := range Keys() {
		tc.Sources[key] = TrackedSource{Source: SourceDefault}
	}
	return tc
}

// Set assigns value to key and records its origin.
func (tc *TrackedConfig) Set(key, value string, source ConfigSource, path string) error {
	if err := tc.Config.SetValue(key, value); err != nil {
		return err
	}
	tc.Sources[key] = TrackedSource{Source: source, Path: path}
	return nil
}

// GetSource returns the source for a config path.
// Returns SourceDefault if no source is recorded.
func (tc *TrackedConfig) GetSource(key string) ConfigSource {
	return tc.GetTrackedSource(key).Source
}

// GetTrackedSource returns the full source info for a config path.
func (tc *TrackedConfig) GetTrackedSource(key string) TrackedSource {
	if ts, ok := tc.Sources[key]; ok {
		return ts
	}
	return TrackedSource{Source: SourceDefault}
}

// Entry is one resolved key for display.
type Entry struct {
	Key    string        `json:"key"`
	Value  string        `json:"value"`
	Source TrackedSource `json:"source"`
}

// Entries lists every key with its effective value and origin, in Keys order.
func (tc *TrackedConfig) Entries() []Entry {
	keys := Keys()
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, _ := tc.Config.GetValue(key)
		if key == "database.dsn" && value != "" {
			value = "********"
		}
		out = append(out, Entry{Key: key, Value: value, Source: tc.GetTrackedSource(key)})
	}
	return out
}
