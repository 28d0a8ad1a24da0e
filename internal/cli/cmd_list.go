package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/todo"
)

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	var filter todo.Filter

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `List tasks, optionally for one member or status.

Recurring tasks whose next period has started are reopened first.
Cleared tasks are hidden unless --all is given.

Example:
  famplan list
  famplan list --member alice --status pending
  famplan list --all --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			views, err := a.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, views)
			}
			if len(views) == 0 {
				if !quiet {
					fmt.Fprintln(out, "No tasks found. Add one with: famplan add \"Your task\" --member <slug>")
				}
				return nil
			}
			printTasks(out, views)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.MemberSlug, "member", "m", "", "only tasks of this member")
	cmd.Flags().StringVarP(&filter.Status, "status", "s", "", "only tasks with this status (pending, done)")
	cmd.Flags().BoolVarP(&filter.IncludeCleared, "all", "a", false, "include cleared tasks")
	return cmd
}

// newShowCmd creates the show command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			view, err := a.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printView(cmd, a, view)
		},
	}
}
