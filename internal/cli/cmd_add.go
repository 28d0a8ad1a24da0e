package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/todo"
)

// newAddCmd creates the add command
func newAddCmd() *cobra.Command {
	var in todo.CreateInput

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a one-off task for a member",
		Long: `Add a task that is not backed by a document.

The member must already exist (sync their document first). The task uses the
member's timezone. Tasks added here survive syncs in preserve mode.

Example:
  famplan add "Pick up dry cleaning" --member alice --time 17:30
  famplan add "Permission slip" -m bob --tag school --notes "due Friday"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			in.Title = strings.Join(args, " ")
			view, err := a.service.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printView(cmd, a, view)
		},
	}
	cmd.Flags().StringVarP(&in.MemberSlug, "member", "m", "", "member slug (required)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.TimeOfDay, "time", "", "time of day (HH:MM)")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
