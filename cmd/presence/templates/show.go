package templatescmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/storage"
)

const showLongDesc string = `Print a template's text.

Prints the active version unless --version selects another one.

Examples:
  presence templates show post
  presence templates show rubric --version 1`

const showShortDesc string = "Print a template"

func newShowCmd() *cobra.Command {
	var (
		version int
		store   bootstrap.StoreFlagValues
	)

	cmd := &cobra.Command{
		Use:       "show <kind>",
		Short:     showShortDesc,
		Long:      showLongDesc,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return runShow(ctx, s, cmd.OutOrStdout(), kind, version)
			})
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Version to print (default: active)")
	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func runShow(ctx context.Context, store storage.TemplateStore, out io.Writer, kind activity.TemplateKind, version int) error {
	versions, err := store.ListTemplates(ctx, kind)
	if err != nil {
		return fmt.Errorf("listing %s templates: %w", kind, err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("no %s templates stored yet", kind)
	}

	tv := versions[len(versions)-1]
	if version != 0 {
		found := false
		for _, v := range versions {
			if v.Version == version {
				tv, found = v, true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s has no version %d", kind, version)
		}
	}

	fmt.Fprintf(out, "%s %s\n\n%s\n",
		cliui.KeyStyle.Render(string(tv.Kind)),
		cliui.NameStyle.Render(fmt.Sprintf("v%d", tv.Version)),
		tv.Text,
	)
	return nil
}
