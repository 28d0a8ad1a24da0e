package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/config"
)

// newSyncCmd creates the sync command
func newSyncCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile member documents into the store",
		Long: `Parse every document in the content directory and reconcile the store.

In preserve mode (default) tasks keep their completion state across syncs and
tasks that vanished from the documents are removed. Replace mode rebuilds
the store from the documents, resetting all completion state.

Example:
  famplan sync
  famplan sync --mode replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, map[string]string{"mode": "sync.mode"})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary, err := a.service.Sync(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, summary)
			}
			if !quiet {
				fmt.Fprintln(out, summary.Message())
				if verbose {
					fmt.Fprintf(out, "mode=%s unchanged=%d removed: tasks=%d rules=%d sources=%d members=%d\n",
						summary.Mode, summary.DocumentsUnchanged, summary.TasksRemoved,
						summary.RulesRemoved, summary.SourcesRemoved, summary.MembersRemoved)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "sync mode: preserve or replace (default from "+config.EnvVarName("sync.mode")+" or config)")
	return cmd
}
