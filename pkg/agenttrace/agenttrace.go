// Package agenttrace holds the Agent Trace record types, an open format for
// attributing code to AI assistance, and renders presence correlation links
// as Agent Trace records.
package agenttrace

import (
	"fmt"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
)

// SpecVersion is the Agent Trace format version written by FromLinks.
const SpecVersion = "0.1.0"

// AgentTrace is the root record for an agent trace.
type AgentTrace struct {
	Version   string         `json:"version"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	VCS       *VCS           `json:"vcs,omitempty"`
	Tool      *Tool          `json:"tool,omitempty"`
	Files     []File         `json:"files"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VCS describes the version control system context.
type VCS struct {
	Type     string `json:"type,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// Tool describes the tool that generated the trace.
type Tool struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// File describes a file with AI-attributed conversations.
type File struct {
	Path          string         `json:"path"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// Conversation describes a conversation that contributed to a file.
type Conversation struct {
	URL              string            `json:"url,omitempty"`
	Contributor      *Contributor      `json:"contributor,omitempty"`
	Ranges           []Range           `json:"ranges,omitempty"`
	RelatedResources []RelatedResource `json:"related_resources,omitempty"`
}

// Contributor describes who contributed to the code (AI or human).
type Contributor struct {
	Type    string `json:"type,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// Range describes a range of lines attributed to AI generation.
type Range struct {
	StartLine   int          `json:"start_line"`
	EndLine     int          `json:"end_line"`
	ContentHash string       `json:"content_hash,omitempty"`
	Contributor *Contributor `json:"contributor,omitempty"`
}

// RelatedResource describes a resource related to the conversation.
type RelatedResource struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// LinkedPrompt is the per-prompt metadata carried on a trace built from
// correlation links.
type LinkedPrompt struct {
	PromptUUID string  `json:"prompt_uuid"`
	Confidence float64 `json:"confidence"`
	DistanceMS int64   `json:"distance_ms"`
	Revision   int     `json:"revision"`
}

// FromLinks builds a commit-level trace from the active correlation links of
// one commit. Presence does not know which files a prompt touched, so the
// trace carries no file entries; the linked prompts travel in metadata under
// "prompts", strongest first as given.
func FromLinks(sha string, links []activity.CorrelationLink, toolVersion string) AgentTrace {
	var newest time.Time
	prompts := make([]LinkedPrompt, 0, len(links))
	for _, l := range links {
		if !l.Active() {
			continue
		}
		if l.CreatedAt.After(newest) {
			newest = l.CreatedAt
		}
		prompts = append(prompts, LinkedPrompt{
			PromptUUID: l.PromptUUID,
			Confidence: l.Confidence,
			DistanceMS: l.Distance.Milliseconds(),
			Revision:   l.Revision,
		})
	}

	trace := AgentTrace{
		Version: SpecVersion,
		ID:      fmt.Sprintf("presence:%s", sha),
		VCS:     &VCS{Type: "git", Revision: sha},
		Tool:    &Tool{Name: "presence", Version: toolVersion},
		Files:   []File{},
		Metadata: map[string]any{
			"prompts": prompts,
		},
	}
	if !newest.IsZero() {
		trace.Timestamp = newest.UTC().Format(time.RFC3339)
	}
	return trace
}
