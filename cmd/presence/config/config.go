// Package configcmder provides the config command for managing persistent
// presence configuration stored in the .presence/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/config"
)

const configLongDesc string = `Manage persistent presence configuration.

Configuration is stored as config.toml in the .presence/ directory and
provides default values for command flags. CLI flags and PRESENCE_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, e.g.:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  llm.provider, llm.model, judge.provider, judge.model,
  correlation.window, gate.threshold, pipeline.batch_commits,
  github.username, claude.dir, x.username, blog.repo_path,
  knowledge.enabled, vector_store.provider, events.provider

Use subcommands to get, set, or list configuration values:
  presence config set <key> <value>    Set a configuration value
  presence config get <key>            Get a configuration value
  presence config list                 List all configuration values

Examples:
  presence config set gate.threshold 0.75
  presence config set correlation.window 45m
  presence config get llm.provider
  presence config list`

const configShortDesc string = "Manage persistent presence configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(out io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
