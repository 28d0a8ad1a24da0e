package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/config"
	"github.com/randalmurphal/famplan/internal/db"
	"github.com/randalmurphal/famplan/internal/reconcile"
	"github.com/randalmurphal/famplan/internal/recurrence"
	"github.com/randalmurphal/famplan/internal/todo"
)

// app bundles what a command needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *db.StoreDB
	engine  *reconcile.Engine
	service *todo.Service
}

// openApp loads config, opens the store and builds the engine and service.
// The caller must Close the returned app.
func openApp(cmd *cobra.Command, local map[string]string) (*app, error) {
	tc, err := loadConfig(cmd, local)
	if err != nil {
		return nil, err
	}
	cfg := tc.Config
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	mode, err := reconcile.ParseMode(cfg.Sync.Mode)
	if err != nil {
		return nil, err
	}

	dialect, dsn := cfg.StoreDSN(projectDir)
	store, err := db.OpenStore(dsn, dialect)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("store opened", "driver", dialect)

	engine := reconcile.New(store,
		reconcile.WithMode(mode),
		reconcile.WithContentDir(cfg.ContentPath(projectDir), cfg.Content.Pattern),
		reconcile.WithLogger(logger),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		engine:  engine,
		service: todo.New(store, todo.WithEngine(engine), todo.WithLogger(logger)),
	}, nil
}

// Close closes the store.
func (a *app) Close() error {
	return a.store.Close()
}

// location is where completion times are displayed.
func (a *app) location() *time.Location {
	return recurrence.ResolveLocation(a.cfg.Timezone.Default)
}

// printView writes one task as JSON or detail text.
func printView(cmd *cobra.Command, a *app, v *todo.View) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, v)
	}
	if !quiet {
		printTask(out, v, a.location())
	}
	return nil
}

// newLogger builds the stderr logger. --verbose forces debug, --quiet
// keeps only errors.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Log.Level)
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if w == nil {
		w = os.Stderr
	}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
