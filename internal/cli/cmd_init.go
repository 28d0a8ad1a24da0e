package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/famplan/internal/config"
	"github.com/randalmurphal/famplan/internal/fsutil"
	"github.com/randalmurphal/famplan/internal/markdown"
	"github.com/randalmurphal/famplan/templates"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	var (
		force  bool
		member templates.Member
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the project config, content directory and store",
		Long: `Initialize famplan in the project directory.

Writes .famplan/config.yaml (kept if it already exists unless --force),
creates the content directory and migrates the store. With --member a
sample checklist document is written for that member unless one exists.

Example:
  famplan init
  famplan init --member alice --name Alice --timezone America/Chicago
  famplan init --db-driver postgres --db-dsn postgres://localhost/famplan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := config.Init(projectDir, force)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			contentDir := a.cfg.ContentPath(projectDir)
			if err := os.MkdirAll(contentDir, 0o755); err != nil {
				return fmt.Errorf("create content dir: %w", err)
			}
			dialect, _ := a.cfg.StoreDSN(projectDir)

			var starterPath string
			if member.Slug != "" {
				if member.Timezone == "" {
					member.Timezone = a.cfg.Timezone.Default
				}
				starterPath, err = writeStarter(contentDir, member)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]any{
					"configPath":    config.ProjectConfigPath(projectDir),
					"configWritten": written,
					"contentDir":    contentDir,
					"driver":        dialect,
					"starter":       starterPath,
				})
			}
			if quiet {
				return nil
			}
			if written {
				fmt.Fprintf(out, "Wrote %s\n", config.ProjectConfigPath(projectDir))
			} else {
				fmt.Fprintf(out, "Kept existing %s\n", config.ProjectConfigPath(projectDir))
			}
			fmt.Fprintf(out, "Content directory: %s\n", contentDir)
			fmt.Fprintf(out, "Store ready (%s)\n", dialect)
			if starterPath != "" {
				fmt.Fprintf(out, "Wrote sample document %s (run famplan sync to load it)\n", starterPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&member.Slug, "member", "", "write a sample document for this member slug")
	cmd.Flags().StringVar(&member.Name, "name", "", "display name for the sample document")
	cmd.Flags().StringVar(&member.Timezone, "timezone", "", "timezone for the sample document (default timezone.default)")
	return cmd
}

// writeStarter writes a sample document for m into dir. An existing
// document is left alone and its path is returned empty.
func writeStarter(dir string, m templates.Member) (string, error) {
	path := filepath.Join(dir, markdown.Slugify(m.Slug)+".md")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	content, err := templates.StarterDocument(m)
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write sample document: %w", err)
	}
	return path, nil
}
