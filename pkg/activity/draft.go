package activity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ContentType is the closed set of content a draft can hold.
type ContentType string

const (
	// ContentPost is a single social post, produced per commit.
	ContentPost ContentType = "post"

	// ContentThread is a multi-part social thread, produced per day.
	ContentThread ContentType = "thread"

	// ContentArticle is a long-form blog article, produced per week.
	ContentArticle ContentType = "article"
)

// ContentTypes lists every ContentType in pipeline order.
var ContentTypes = []ContentType{ContentPost, ContentThread, ContentArticle}

// ParseContentType accepts the canonical names and the legacy names used by
// earlier databases ("x_post", "x_thread", "blog_post").
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "post", "x_post":
		return ContentPost, nil
	case "thread", "x_thread":
		return ContentThread, nil
	case "article", "blog_post":
		return ContentArticle, nil
	default:
		return "", fmt.Errorf("unknown content type %q", s)
	}
}

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentPost, ContentThread, ContentArticle:
		return true
	default:
		return false
	}
}

// TemplateKind returns the generation template kind for the content type.
func (c ContentType) TemplateKind() TemplateKind {
	return TemplateKind("generate:" + string(c))
}

// DraftState is the derived position of a draft in its lifecycle.
type DraftState string

const (
	StateUnscored   DraftState = "unscored"
	StateSuppressed DraftState = "suppressed"
	StatePending    DraftState = "pending"
	StatePublished  DraftState = "published"
)

// ParseDraftState parses a state name. An empty name or "all" yields the
// empty state, which matches every draft.
func ParseDraftState(s string) (DraftState, error) {
	switch st := DraftState(strings.ToLower(strings.TrimSpace(s))); st {
	case "", "all":
		return "", nil
	case StateUnscored, StateSuppressed, StatePending, StatePublished:
		return st, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}

// ContentDraft is one generated piece of content and its gate and publish
// outcome. Body is immutable once scored, Approved is decided once and
// PublishedLocation is set at most once.
type ContentDraft struct {
	ID              int64              `json:"id,omitempty"`
	Key             string             `json:"key"`
	Type            ContentType        `json:"type"`
	CommitSHAs      []string           `json:"commit_shas"`
	PromptUUIDs     []string           `json:"prompt_uuids"`
	Body            string             `json:"body"`
	TemplateKind    TemplateKind       `json:"template_kind"`
	TemplateVersion int                `json:"template_version"`
	Scored          bool               `json:"scored"`
	Score           float64            `json:"score"`
	Dimensions      map[string]float64 `json:"dimensions,omitempty"`
	Rationale       string             `json:"rationale"`
	Approved        bool               `json:"approved"`

	PublishedLocation  string     `json:"published_location,omitempty"`
	PublishAttempts    int        `json:"publish_attempts"`
	PublishAttemptedAt *time.Time `json:"publish_attempted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
}

// Published reports whether the draft has reached a channel.
func (d ContentDraft) Published() bool {
	return d.PublishedLocation != ""
}

// State derives the lifecycle state from the draft's fields.
func (d ContentDraft) State() DraftState {
	switch {
	case !d.Scored:
		return StateUnscored
	case !d.Approved:
		return StateSuppressed
	case d.Published():
		return StatePublished
	default:
		return StatePending
	}
}

// DraftKey builds the natural key for a draft so that re-running a pass over
// the same inputs does not create a second draft. Per-commit posts key on
// the commit SHA, batched posts on a digest of the SHAs, digests on period.
func DraftKey(ct ContentType, period string, commitSHAs []string) string {
	switch {
	case period != "":
		return string(ct) + ":" + period
	case len(commitSHAs) == 1:
		return string(ct) + ":" + commitSHAs[0]
	default:
		h := sha256.New()
		for _, sha := range commitSHAs {
			h.Write([]byte(sha))
			h.Write([]byte{0})
		}
		return string(ct) + ":batch:" + hex.EncodeToString(h.Sum(nil))[:16]
	}
}
