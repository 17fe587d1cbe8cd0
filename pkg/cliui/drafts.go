package cliui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/utils"
)

var stateStyles = map[activity.DraftState]lipgloss.Style{
	activity.StatePublished:  lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	activity.StatePending:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	activity.StateSuppressed: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	activity.StateUnscored:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

// State renders a draft state in its colour.
func State(s activity.DraftState) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// DraftTable renders drafts as a bordered table sized to width.
func DraftTable(drafts []activity.ContentDraft, width int) string {
	previewWidth := max(width-60, 20)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(DimStyle).
		Headers("ID", "TYPE", "STATE", "SCORE", "CREATED", "PREVIEW").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, d := range drafts {
		score := "-"
		if d.Scored {
			score = fmt.Sprintf("%.2f", d.Score)
		}
		t.Row(
			fmt.Sprintf("%d", d.ID),
			string(d.Type),
			State(d.State()),
			score,
			d.CreatedAt.Format("2006-01-02 15:04"),
			utils.Truncate(utils.FirstLine(d.Body), previewWidth),
		)
	}

	return t.String()
}

// DraftDetail renders one draft with its gate outcome as markdown.
func DraftDetail(d activity.ContentDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %d\n\n", d.Type, d.ID)
	fmt.Fprintf(&b, "- **Key:** `%s`\n", d.Key)
	fmt.Fprintf(&b, "- **State:** %s\n", d.State())
	fmt.Fprintf(&b, "- **Template:** %s v%d\n", d.TemplateKind, d.TemplateVersion)
	fmt.Fprintf(&b, "- **Commits:** %s\n", strings.Join(d.CommitSHAs, ", "))
	if len(d.PromptUUIDs) > 0 {
		fmt.Fprintf(&b, "- **Prompts:** %d\n", len(d.PromptUUIDs))
	}
	if d.Scored {
		fmt.Fprintf(&b, "- **Score:** %.2f\n", d.Score)
	}
	if d.Published() {
		fmt.Fprintf(&b, "- **Published:** %s\n", d.PublishedLocation)
	} else if d.PublishAttempts > 0 {
		fmt.Fprintf(&b, "- **Publish attempts:** %d\n", d.PublishAttempts)
	}

	if len(d.Dimensions) > 0 {
		b.WriteString("\n| dimension | score |\n|---|---|\n")
		names := make([]string, 0, len(d.Dimensions))
		for name := range d.Dimensions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "| %s | %.2f |\n", name, d.Dimensions[name])
		}
	}

	b.WriteString("\n## Body\n\n")
	b.WriteString(d.Body)
	b.WriteString("\n")

	if d.Rationale != "" {
		b.WriteString("\n## Rationale\n\n")
		b.WriteString(d.Rationale)
		b.WriteString("\n")
	}
	return b.String()
}
