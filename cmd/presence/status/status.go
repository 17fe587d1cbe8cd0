// Package statuscmder provides the status command for displaying the last
// run of every pass and the publish queue.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/dotdir"
	"github.com/papercomputeco/presence/pkg/pipeline"
	"github.com/papercomputeco/presence/pkg/storage"
)

const statusLongDesc string = `Show the last run of every pass and the publish queue.

Reads the run state from the .presence/ directory (or ~/.presence/) and
counts approved drafts still waiting to be published.

Examples:
  presence status`

const statusShortDesc string = "Show pass history and the publish queue"

func NewStatusCmd() *cobra.Command {
	var store bootstrap.StoreFlagValues

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			out := cmd.OutOrStdout()

			state, err := dotdir.NewManager().LoadRunState(configDir)
			if err != nil {
				return fmt.Errorf("loading run state: %w", err)
			}
			printPasses(out, state, time.Now())

			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return printQueue(ctx, out, s)
			})
		},
	}

	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func printPasses(out io.Writer, state *dotdir.RunState, now time.Time) {
	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Passes"))

	for _, pass := range pipeline.Passes {
		rec, ok := state.Passes[string(pass)]
		name := cliui.KeyStyle.Render(fmt.Sprintf("%-7s", pass))
		if !ok {
			fmt.Fprintf(out, "  %s %s  %s\n", cliui.DimStyle.Render("●"), name, cliui.DimStyle.Render("never run"))
			continue
		}

		mark := cliui.SuccessMark
		if rec.Error != "" || rec.Failed > 0 {
			mark = cliui.FailMark
		}
		fmt.Fprintf(out, "  %s %s  %s  %s\n",
			mark,
			name,
			cliui.NameStyle.Render(ago(now.Sub(rec.FinishedAt))),
			cliui.DimStyle.Render(fmt.Sprintf("drafted %d, approved %d, suppressed %d, published %d, failed %d",
				rec.Generated, rec.Approved, rec.Suppressed, rec.Published, rec.Failed)),
		)
		if rec.Error != "" {
			fmt.Fprintf(out, "            %s\n", cliui.WarnStyle.Render(rec.Error))
		}
	}
}

func printQueue(ctx context.Context, out io.Writer, store storage.DraftStore) error {
	queued, err := store.UnpublishedApprovedDrafts(ctx)
	if err != nil {
		return fmt.Errorf("loading publish queue: %w", err)
	}

	kvs := []cliui.KV{{Key: "Queued for publishing", Value: strconv.Itoa(len(queued))}}
	if len(queued) > 0 {
		oldest := queued[0]
		kvs = append(kvs, cliui.KV{
			Key:   "Oldest",
			Value: fmt.Sprintf("#%d %s from %s, %d attempts", oldest.ID, oldest.Type, oldest.CreatedAt.Format("2006-01-02 15:04"), oldest.PublishAttempts),
		})
	}
	fmt.Fprintln(out)
	cliui.KeyValues(out, kvs)
	fmt.Fprintln(out)
	return nil
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
