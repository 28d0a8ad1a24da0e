package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/randalmurphal/famplan/internal/recurrence"
	"github.com/randalmurphal/famplan/internal/todo"
)

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// useColor reports whether w is a terminal and color is allowed.
func useColor(w io.Writer) bool {
	if noColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// memberLabel renders a member slug in the member's colour.
func memberLabel(m todo.MemberView, color bool) string {
	if !color || m.ColorHex == "" {
		return m.Slug
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.ColorHex)).Render(m.Slug)
}

// dim renders s in grey on a terminal.
func dim(w io.Writer, s string) string {
	if !useColor(w) {
		return s
	}
	return dimStyle.Render(s)
}

func statusIcon(status string) string {
	if status == "DONE" {
		return "[x]"
	}
	return "[ ]"
}

// printTasks writes a task table.
func printTasks(w io.Writer, views []todo.View) {
	color := useColor(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMEMBER\tTIME\tREPEATS\tTITLE")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, statusIcon(v.Status), memberLabel(v.Member, color),
			dash(v.TimeOfDay), dash(repeats(v)), truncate(v.Title, 50))
	}
	_ = tw.Flush()
}

// printTask writes the detail of one task.
func printTask(w io.Writer, v *todo.View, loc *time.Location) {
	fmt.Fprintf(w, "%s %s\n", statusIcon(v.Status), v.Title)
	fmt.Fprintf(w, "  id:       %s\n", v.ID)
	fmt.Fprintf(w, "  member:   %s\n", memberLabel(v.Member, useColor(w)))
	if v.Category != "" {
		fmt.Fprintf(w, "  category: %s\n", v.Category)
	}
	if v.TimeOfDay != "" {
		fmt.Fprintf(w, "  time:     %s\n", v.TimeOfDay)
	}
	if len(v.Tags) > 0 {
		fmt.Fprintf(w, "  tags:     %s\n", strings.Join(v.Tags, ", "))
	}
	if r := repeats(*v); r != "" {
		fmt.Fprintf(w, "  repeats:  %s\n", r)
	}
	if v.CompletedAt != nil {
		fmt.Fprintf(w, "  done:     %s\n", v.CompletedAt.In(loc).Format(time.RFC3339))
	}
	if v.Source != nil {
		fmt.Fprintln(w, dim(w, fmt.Sprintf("  source:   %s:%d", v.Source.Path, v.Source.Line)))
	}
	if v.Notes != "" {
		fmt.Fprintf(w, "\n  %s\n", v.Notes)
	}
}

func repeats(v todo.View) string {
	r := v.Recurring
	if r == nil {
		return ""
	}
	if r.Pattern != "" {
		return r.Pattern
	}
	switch recurrence.Frequency(r.Frequency) {
	case recurrence.Weekly:
		return "weekly:" + strings.Join(r.DaysOfWeek, ",")
	case recurrence.Monthly:
		if r.DayOfMonth != nil {
			return fmt.Sprintf("monthly:%d", *r.DayOfMonth)
		}
	}
	return strings.ToLower(r.Frequency)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
