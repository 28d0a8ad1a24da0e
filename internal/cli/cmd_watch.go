package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/lock"
	"github.com/randalmurphal/famplan/internal/reconcile"
	"github.com/randalmurphal/famplan/internal/watcher"
)

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Resync whenever a member document changes",
		Long: `Watch the content directory and sync after documents change.

Runs one sync on start. Bursts of edits are coalesced (watch.debounce_ms).
Only one watcher may run per content directory; a lock file in the
directory records the owner and is refreshed while watching.

Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			contentDir := a.cfg.ContentPath(projectDir)
			dirLock := lock.New(contentDir, lock.DefaultOwner())
			if err := dirLock.Acquire(); err != nil {
				return err
			}
			defer func() {
				if err := dirLock.Release(); err != nil {
					a.logger.Warn("release watch lock", "error", err)
				}
			}()

			ctx, cancel := setupSignalHandler(cmd.Context(), cmd.ErrOrStderr())
			defer cancel()

			heartbeat := lock.NewHeartbeatRunner(dirLock, lock.DefaultHeartbeatInterval)
			heartbeat.Start(ctx)
			defer heartbeat.Stop()

			out := cmd.OutOrStdout()
			w, err := watcher.New(&watcher.Config{
				Dir:      contentDir,
				Pattern:  a.cfg.Content.Pattern,
				Syncer:   a.engine,
				Logger:   a.logger,
				Debounce: a.cfg.Debounce(),
				OnSync: func(summary *reconcile.Summary, err error) {
					switch {
					case jsonOut && err == nil:
						_ = printJSON(out, summary)
					case err != nil:
						PrintError(err)
					case !quiet:
						fmt.Fprintln(out, summary.Message())
					}
				},
			})
			if err != nil {
				return err
			}

			if !quiet && !jsonOut {
				fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", contentDir)
			}
			err = w.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
