package draftscmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/storage"
)

const showLongDesc string = `Show one draft in full.

Prints the draft body, its gate score with the per-dimension breakdown,
the judge's rationale and where it was published. Output is rendered as
markdown on a terminal; use --raw to print the markdown source.

Examples:
  presence drafts show 42
  presence drafts show 42 --raw`

const showShortDesc string = "Show one draft"

func newShowCmd() *cobra.Command {
	var (
		raw   bool
		store bootstrap.StoreFlagValues
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid draft id %q", args[0])
			}
			out := cmd.OutOrStdout()
			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return runShow(ctx, s, out, id, raw || !cliui.IsTerminal(out))
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering")
	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func runShow(ctx context.Context, store storage.DraftStore, out io.Writer, id int64, raw bool) error {
	d, err := store.GetDraft(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("draft %d not found", id)
		}
		return fmt.Errorf("loading draft: %w", err)
	}

	detail := cliui.DraftDetail(d)
	if raw {
		_, err := io.WriteString(out, detail)
		return err
	}

	rendered, err := cliui.RenderMarkdown(detail, cliui.TerminalWidth(out, 100))
	if err != nil {
		// Fall back to the raw markdown.
		rendered = detail
	}
	_, err = io.WriteString(out, rendered)
	return err
}
