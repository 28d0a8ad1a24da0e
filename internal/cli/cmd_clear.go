package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newClearCmd creates the clear command
func newClearCmd() *cobra.Command {
	var member string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Hide finished tasks",
		Long: `Hide every DONE task, or only one member's with --member.

Cleared tasks stay in the store (see list --all). Recurring tasks that are
due again are reopened in the same step.

Example:
  famplan clear
  famplan clear --member bob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.service.ClearFinished(cmd.Context(), member)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, result)
			}
			if !quiet {
				fmt.Fprintf(out, "Cleared %d finished task(s), reopened %d recurring task(s).\n", result.Cleared, result.Reactivated)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&member, "member", "m", "", "only this member's tasks")
	return cmd
}

// newSweepCmd creates the sweep command
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reopen recurring tasks that are due again",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.service.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, result)
			}
			if !quiet {
				fmt.Fprintf(out, "Reopened %d recurring task(s).\n", result.Reactivated)
			}
			return nil
		},
	}
}
