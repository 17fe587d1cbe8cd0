// Package initcmder provides the init command for initializing a local
// .presence directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .presence/ directory.

Creates a .presence/ directory in the given directory (the current working
directory by default) holding config.toml, credentials.toml, the SQLite
event store and the run state. A local .presence/ directory takes
precedence over ~/.presence/.

Use --preset to start from a provider preset:
  openai      OpenAI models for generation and judging
  anthropic   Anthropic models for generation and judging
  ollama      Local models through Ollama

Examples:
  presence init
  presence init --preset anthropic
  presence init ~ --preset ollama`

const initShortDesc string = "Initialize a .presence/ directory"

func NewInitCmd() *cobra.Command {
	var (
		preset string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 1 {
				parent = args[0]
			} else {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting current directory: %w", err)
				}
				parent = cwd
			}
			return runInit(cmd.OutOrStdout(), parent, preset, force)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func runInit(out io.Writer, parent, preset string, force bool) error {
	cfg := config.NewDefaultConfig()
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	dir, err := dotdir.NewManager().Init(parent)
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.toml")
	_, err = os.Stat(configPath)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	if exists && !force {
		fmt.Fprintf(out, "\n  %s Already initialized: %s\n", cliui.SuccessMark, cliui.NameStyle.Render(dir))
		if preset != "" {
			fmt.Fprintf(out, "  %s config.toml kept; pass --force to apply the %s preset.\n",
				cliui.WarnStyle.Render("!"), preset)
		}
		fmt.Fprintln(out)
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Initialized %s\n", cliui.SuccessMark, cliui.NameStyle.Render(dir))
	fmt.Fprintf(out, "  %s %s\n\n", cliui.KeyStyle.Render("Next:"),
		cliui.DimStyle.Render("presence auth <provider>, presence config set github.username <you>"))
	return nil
}
