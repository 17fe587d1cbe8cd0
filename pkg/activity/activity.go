// Package activity holds the domain values passed between the presence
// pipeline stages: ingested events, correlation links, content drafts and
// versioned templates. Values here never reference the store; stages hand
// them to each other by value.
package activity

import (
	"time"
)

// PromptEvent is one recorded developer instruction to an AI assistant.
// UUID is the natural key.
type PromptEvent struct {
	UUID        string    `json:"uuid"`
	SessionID   string    `json:"session_id"`
	ProjectPath string    `json:"project_path"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
}

// CommitEvent is one version-control commit. SHA is the natural key.
type CommitEvent struct {
	SHA       string    `json:"sha"`
	Repo      string    `json:"repo"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	URL       string    `json:"url,omitempty"`
}

// Subject returns the first line of the commit message.
func (c CommitEvent) Subject() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// CorrelationLink is a hypothesized causal relationship between one commit
// and one prompt. Links are append-only: re-evaluating a pair writes a new
// revision and marks the previous one superseded.
type CorrelationLink struct {
	ID           int64         `json:"id,omitempty"`
	CommitSHA    string        `json:"commit_sha"`
	PromptUUID   string        `json:"prompt_uuid"`
	Confidence   float64       `json:"confidence"`
	Distance     time.Duration `json:"distance"`
	Revision     int           `json:"revision"`
	SupersededBy *int64        `json:"superseded_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Active reports whether the link has not been superseded.
func (l CorrelationLink) Active() bool {
	return l.SupersededBy == nil
}

// Unit is one correlated piece of work: a commit and the prompts linked to
// it. A unit with no prompts is valid and produces commit-only content.
type Unit struct {
	Commit  CommitEvent       `json:"commit"`
	Prompts []PromptEvent     `json:"prompts"`
	Links   []CorrelationLink `json:"links"`
}

// Normalize returns t in the single timezone used for storage and window
// arithmetic, truncated to the stored millisecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
