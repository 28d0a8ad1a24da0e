package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0-dev"

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show famplan version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "famplan version %s\n", Version)
			return nil
		},
	}
}
