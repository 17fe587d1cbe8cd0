// Package presencecmder
package presencecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/presence/cmd/presence/auth"
	configcmder "github.com/papercomputeco/presence/cmd/presence/config"
	draftscmder "github.com/papercomputeco/presence/cmd/presence/drafts"
	initcmder "github.com/papercomputeco/presence/cmd/presence/init"
	runcmder "github.com/papercomputeco/presence/cmd/presence/run"
	servecmder "github.com/papercomputeco/presence/cmd/presence/serve"
	statuscmder "github.com/papercomputeco/presence/cmd/presence/status"
	templatescmder "github.com/papercomputeco/presence/cmd/presence/templates"
	versioncmder "github.com/papercomputeco/presence/cmd/version"
)

const presenceLongDesc string = `Presence turns your commits and AI pairing sessions into posts.

Commits and prompts are correlated into units of work, drafted by a model,
scored by a judge and published only when they clear the quality gate.

Run passes from your scheduler using:
  presence run commit    Draft and publish a post per new commit
  presence run daily     Draft a thread for yesterday's work
  presence run weekly    Draft a blog article for last week's work
  presence run retry     Publish approved drafts that failed earlier

Inspect results with:
  presence drafts list   List drafts and their gate decisions
  presence status        Show the last run of every pass
  presence serve         Serve drafts over HTTP and MCP`

const presenceShortDesc string = "Presence - Developer activity to published content"

func NewPresenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "presence",
		Short:        presenceShortDesc,
		Long:         presenceLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .presence/ config directory")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(draftscmder.NewDraftsCmd())
	cmd.AddCommand(templatescmder.NewTemplatesCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
