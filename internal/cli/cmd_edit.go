package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/db"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/todo"
)

// newDoneCmd creates the done command
func newDoneCmd() *cobra.Command {
	return newStatusCmd("done <id>", "Mark a task done", db.StatusDone)
}

// newReopenCmd creates the reopen command
func newReopenCmd() *cobra.Command {
	return newStatusCmd("reopen <id>", "Mark a task pending again", db.StatusPending)
}

func newStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0], todo.Patch{Status: &status})
		},
	}
}

// newEditCmd creates the edit command
func newEditCmd() *cobra.Command {
	var (
		title, notes, category, timeOfDay, status string
		tags                                      []string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task",
		Long: `Edit the fields of a task. Only the flags given are changed.

Edits to document-backed tasks last until the next sync rewrites them.

Example:
  famplan edit 3f2a... --title "Brush teeth (both)" --time 07:45
  famplan edit 3f2a... --time ""     # clear the time
  famplan edit 3f2a... --tag health --tag kids`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch todo.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("time") {
				patch.TimeOfDay = &timeOfDay
			}
			if flags.Changed("tag") {
				patch.Tags = &tags
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if patch == (todo.Patch{}) {
				return ferrors.ErrInputInvalid("patch", "no fields to change")
			}
			return runUpdate(cmd, args[0], patch)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&timeOfDay, "time", "", "new time of day (HH:MM, empty to clear)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, done)")
	return cmd
}

func runUpdate(cmd *cobra.Command, id string, patch todo.Patch) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	view, err := a.service.Update(cmd.Context(), id, patch)
	if err != nil {
		return err
	}
	return printView(cmd, a, view)
}
