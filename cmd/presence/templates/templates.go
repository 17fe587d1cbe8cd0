// Package templatescmder provides the templates command for managing the
// versioned generation templates and judge rubric.
package templatescmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/activity"
)

const templatesLongDesc string = `Manage generation templates and the judge rubric.

Templates are versioned per kind. The highest version of a kind is active
and every draft records the version it was generated with, so scores can
be compared across versions. Versions are never edited; adding a template
appends a new version.

Kinds:
  post, thread, article   Generation templates per content type
  rubric                  The quality gate rubric

Use subcommands to inspect or add templates:
  presence templates list [kind]            List versions with their scores
  presence templates show <kind>            Print the active template
  presence templates add <kind> --file f    Add a new version`

const templatesShortDesc string = "Manage generation templates and the rubric"

func NewTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: templatesShortDesc,
		Long:  templatesLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newAddCmd())

	return cmd
}

// allKinds lists every template kind in display order.
func allKinds() []activity.TemplateKind {
	kinds := make([]activity.TemplateKind, 0, len(activity.ContentTypes)+1)
	for _, ct := range activity.ContentTypes {
		kinds = append(kinds, ct.TemplateKind())
	}
	return append(kinds, activity.KindRubric)
}

func kindNames() []string {
	names := make([]string, 0, len(activity.ContentTypes)+1)
	for _, ct := range activity.ContentTypes {
		names = append(names, string(ct))
	}
	return append(names, string(activity.KindRubric))
}

// parseKind accepts only the kinds presence generates or judges with.
func parseKind(name string) (activity.TemplateKind, error) {
	kind := activity.ParseTemplateKind(name)
	for _, k := range allKinds() {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown template kind %q\n\nValid kinds: %s", name, strings.Join(kindNames(), ", "))
}
