package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/markdown"
)

// newParseCmd creates the parse command
func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse one document and print the result",
		Long: `Parse a member document without touching the store.

Useful for checking a document before syncing it.

Example:
  famplan parse content/todos/alice.md
  famplan parse alice.md --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			doc, err := markdown.LoadFile(filepath.Dir(path), filepath.Base(path))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, doc)
			}

			name := doc.Owner.Name
			if name == "" {
				name = doc.Owner.Slug
			}
			fmt.Fprintf(out, "%s (%s)", name, doc.Owner.Slug)
			if doc.Owner.Timezone != "" {
				fmt.Fprintf(out, " %s", doc.Owner.Timezone)
			}
			fmt.Fprintf(out, "\n%d task(s), checksum %s\n\n", len(doc.Tasks), doc.Checksum[:12])

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "LINE\tDONE\tCATEGORY\tTIME\tREPEATS\tTAGS\tTITLE")
			for _, t := range doc.Tasks {
				rep := ""
				if t.Recurrence != nil {
					rep = t.Recurrence.Raw
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.SourceLine, statusIcon(checkedStatus(t.Checked)), dash(t.Category),
					dash(t.TimeOfDay), dash(rep), dash(strings.Join(t.Tags, ",")), truncate(t.Title, 50))
			}
			return tw.Flush()
		},
	}
}

func checkedStatus(checked bool) string {
	if checked {
		return "DONE"
	}
	return "PENDING"
}
