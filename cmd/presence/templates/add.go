package templatescmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/storage"
)

const addLongDesc string = `Add a new template version.

The text is read from --file, or from stdin when no file is given. The new
version becomes active for the next pass. Generation templates receive the
commits, prompts and prior posts as context after the template text; the
rubric must ask the judge for a score per dimension.

Examples:
  presence templates add post --file post.txt
  cat rubric.txt | presence templates add rubric`

const addShortDesc string = "Add a new template version"

func newAddCmd() *cobra.Command {
	var (
		file  string
		store bootstrap.StoreFlagValues
	)

	cmd := &cobra.Command{
		Use:       "add <kind>",
		Short:     addShortDesc,
		Long:      addLongDesc,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			text, err := readTemplate(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return bootstrap.WithStore(cmd, func(ctx context.Context, s storage.Driver) error {
				return runAdd(ctx, s, cmd.OutOrStdout(), kind, text)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the template from this file")
	bootstrap.AddStoreFlags(cmd, &store)

	return cmd
}

func readTemplate(file string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("template text cannot be empty")
	}
	return text, nil
}

func runAdd(ctx context.Context, store storage.TemplateStore, out io.Writer, kind activity.TemplateKind, text string) error {
	tv, err := store.AddTemplate(ctx, kind, text)
	if err != nil {
		return fmt.Errorf("adding template: %w", err)
	}

	fmt.Fprintf(out, "\n  %s Added %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(string(tv.Kind)),
		cliui.DimStyle.Render(fmt.Sprintf("v%d (active)", tv.Version)),
	)
	return nil
}
