package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/famplan/internal/config"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage famplan configuration.

Configuration is merged from these sources, later ones winning:
  1. Defaults: built-in values
  2. User: ~/.famplan/config.yaml
  3. Project: .famplan/config.yaml
  4. File: --config <file>
  5. Runtime: environment variables (FAMPLAN_*), CLI flags

Examples:
  famplan config                       # Show resolved config with sources
  famplan config show                  # Same as above
  famplan config show --yaml           # Merged config as YAML
  famplan config get sync.mode
  famplan config set sync.mode replace # Set in the project config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, false)
		},
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the merged config as YAML")
	return cmd
}

func runConfigShow(cmd *cobra.Command, asYAML bool) error {
	tc, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOut:
		return printJSON(out, tc.Entries())
	case asYAML:
		return printConfigAsYAML(out, tc.Config)
	default:
		return printConfigWithSources(out, tc)
	}
}

// newConfigGetCmd creates the 'config get' subcommand.
func newConfigGetCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a specific config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			tc, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			value, err := tc.Config.GetValue(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, config.Entry{Key: key, Value: value, Source: tc.GetTrackedSource(key)})
			}
			if showSource {
				fmt.Fprintf(out, "%s (from %s)\n", value, tc.GetTrackedSource(key))
				return nil
			}
			fmt.Fprintln(out, value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSource, "source", false, "show where the value comes from")
	return cmd
}

// newConfigSetCmd creates the 'config set' subcommand.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the project config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			path := config.ProjectConfigPath(projectDir)

			cfg, err := config.LoadFrom(path)
			if errors.Is(err, fs.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return err
			}
			if err := cfg.SetValue(key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, path)
			}
			return nil
		},
	}
}

func printConfigAsYAML(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func printConfigWithSources(w io.Writer, tc *config.TrackedConfig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, e := range tc.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, dash(e.Value), e.Source)
	}
	return tw.Flush()
}
