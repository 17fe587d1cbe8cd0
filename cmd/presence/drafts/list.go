package draftscmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/storage"
)

const listLongDesc string = `List drafts, newest first.

Examples:
  presence drafts list
  presence drafts list --state pending
  presence drafts list --type thread --limit 5
  presence drafts list --json`

const listShortDesc string = "List drafts"

func newListCmd() *cobra.Command {
	var (
		state  string
		ctype  string
		limit  int
		asJSON bool
		store  bootstrap.StoreFlagValues
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := parseFilter(state, ctype, limit)
			if err != nil {
				return err
			}
			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return runList(ctx, s, cmd.OutOrStdout(), filter, asJSON)
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "all", "Filter by state (pending, published, suppressed, unscored, all)")
	cmd.Flags().StringVar(&ctype, "type", "", "Filter by content type (post, thread, article)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of drafts to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print drafts as JSON")
	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func parseFilter(state, ctype string, limit int) (storage.DraftFilter, error) {
	var filter storage.DraftFilter

	st, err := activity.ParseDraftState(state)
	if err != nil {
		return filter, err
	}
	filter.State = st

	if ctype != "" {
		ct, err := activity.ParseContentType(ctype)
		if err != nil {
			return filter, err
		}
		filter.Type = ct
	}

	if limit < 0 {
		return filter, errors.New("--limit must not be negative")
	}
	filter.Limit = limit
	filter.Newest = limit > 0

	return filter, nil
}

func runList(ctx context.Context, store storage.DraftStore, out io.Writer, filter storage.DraftFilter, asJSON bool) error {
	drafts, err := store.ListDrafts(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing drafts: %w", err)
	}

	if asJSON {
		if drafts == nil {
			drafts = []activity.ContentDraft{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(drafts)
	}

	if len(drafts) == 0 {
		fmt.Fprintf(out, "\n  %s No drafts found.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintln(out, cliui.DraftTable(drafts, cliui.TerminalWidth(out, 120)))
	return nil
}
