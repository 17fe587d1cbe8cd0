package templatescmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/storage"
)

const listLongDesc string = `List template versions with their running average score and usage.

The active version of each kind is marked. Without a kind every kind is
listed.

Examples:
  presence templates list
  presence templates list rubric`

const listShortDesc string = "List template versions"

func newListCmd() *cobra.Command {
	var store bootstrap.StoreFlagValues

	cmd := &cobra.Command{
		Use:       "list [kind]",
		Short:     listShortDesc,
		Long:      listLongDesc,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := allKinds()
			if len(args) == 1 {
				kind, err := parseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []activity.TemplateKind{kind}
			}
			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return runList(ctx, s, cmd.OutOrStdout(), kinds)
			})
		},
	}

	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func runList(ctx context.Context, store storage.TemplateStore, out io.Writer, kinds []activity.TemplateKind) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(cliui.DimStyle).
		Headers("KIND", "VERSION", "AVG SCORE", "USES", "CREATED", "").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cliui.HeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	rows := 0
	for _, kind := range kinds {
		versions, err := store.ListTemplates(ctx, kind)
		if err != nil {
			return fmt.Errorf("listing %s templates: %w", kind, err)
		}
		for i, v := range versions {
			active := ""
			if i == len(versions)-1 {
				active = cliui.SuccessMark + " active"
			}
			score := "-"
			if v.Uses > 0 {
				score = fmt.Sprintf("%.2f", v.AvgScore)
			}
			t.Row(string(v.Kind), strconv.Itoa(v.Version), score, strconv.Itoa(v.Uses), v.CreatedAt.Format("2006-01-02"), active)
			rows++
		}
	}

	if rows == 0 {
		fmt.Fprintf(out, "\n  %s No templates stored yet. Seed templates are added on the first run.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintln(out, t.String())
	return nil
}
