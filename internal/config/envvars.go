package config

import (
	"log/slog"
	"os"
	"sort"
	"strings"
)

// EnvPrefix prefixes every famplan environment variable.
const EnvPrefix = "FAMPLAN"

// EnvVarName returns the environment variable for a config key,
// e.g. "watch.debounce_ms" -> "FAMPLAN_WATCH_DEBOUNCE_MS".
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// EnvVarMapping maps environment variables to config paths.
func EnvVarMapping() map[string]string {
	m := make(map[string]string)
	for _, key := range Keys() {
		m[EnvVarName(key)] = key
	}
	return m
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns the paths that were overridden, sorted. Values that do not parse
// are logged and skipped.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string
	for envVar, key := range EnvVarMapping() {
		value, ok := os.LookupEnv(envVar)
		if !ok || value == "" {
			continue
		}
		if err := tc.Set(key, value, SourceEnv, envVar); err != nil {
			slog.Warn("ignoring environment override", "var", envVar, "error", err)
			continue
		}
		overridden = append(overridden, key)
	}
	sort.Strings(overridden)
	return overridden
}
