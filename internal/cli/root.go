// Package cli implements the famplan command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/famplan/internal/config"
)

var (
	cfgFile    string
	projectDir string
	verbose    bool
	quiet      bool
	jsonOut    bool
	noColor    bool

	// vp holds flag bindings and the FAMPLAN_ env prefix.
	vp = viper.New()
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"content-dir": "content.dir",
	"db-driver":   "database.driver",
	"db-path":     "database.path",
	"db-dsn":      "database.dsn",
	"log-level":   "log.level",
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "famplan",
		Short: "Family checklist planner",
		Long: `famplan keeps a family's checklists in markdown and tracks them in a database.

Each member owns one markdown document with a front-matter block naming the
member, followed by headed checklists. Recurring items reopen on schedule
after they are checked off.

Quick start:
  famplan init                        Create the config and store
  famplan sync                        Load content/todos/*.md
  famplan list                        Show open tasks
  famplan done <id>                   Check a task off
  famplan watch                       Resync whenever a document changes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file applied over .famplan/config.yaml")
	flags.StringVarP(&projectDir, "dir", "C", ".", "project directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	flags.BoolVar(&jsonOut, "json", false, "output as JSON")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.String("content-dir", "", "directory holding member documents")
	flags.String("db-driver", "", "store driver (sqlite or postgres)")
	flags.String("db-path", "", "SQLite store path")
	flags.String("db-dsn", "", "PostgreSQL connection string")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newDoneCmd())
	cmd.AddCommand(newReopenCmd())
	cmd.AddCommand(newEditCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI and prints any error.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

// initConfig reads ENV variables and the --config file if set.
func initConfig() {
	vp.SetEnvPrefix(config.EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err == nil && verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", vp.ConfigFileUsed())
		}
	}
}

// loadConfig resolves configuration for the project directory and applies
// flags that were set on cmd. local maps command flags onto config keys in
// addition to the persistent ones.
func loadConfig(cmd *cobra.Command, local map[string]string) (*config.TrackedConfig, error) {
	var opts []config.LoaderOption
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}
	tc, err := config.NewLoader(projectDir, opts...).Load()
	if err != nil {
		return nil, err
	}

	bindings := make(map[string]string, len(flagKeys)+len(local))
	for flag, key := range flagKeys {
		bindings[flag] = key
	}
	for flag, key := range local {
		bindings[flag] = key
	}
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := vp.BindPFlag(key, f); err != nil {
			return nil, err
		}
		if err := tc.Set(key, vp.GetString(key), config.SourceFlag, "--"+flag); err != nil {
			return nil, err
		}
	}
	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}
