// Package draftscmder provides the drafts command for inspecting generated
// content and its quality gate outcome.
package draftscmder

import (
	"github.com/spf13/cobra"
)

const draftsLongDesc string = `Inspect generated drafts.

Every pass stores the drafts it generates along with the judge's score,
per-dimension breakdown and rationale, whether or not they were published.

States:
  pending     approved by the gate, not yet published
  published   delivered to its channel
  suppressed  scored below the threshold
  unscored    generated but never scored

Use subcommands to list or show drafts:
  presence drafts list              List recent drafts
  presence drafts show <id>         Show one draft in full`

const draftsShortDesc string = "Inspect generated drafts"

func NewDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: draftsShortDesc,
		Long:  draftsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}
