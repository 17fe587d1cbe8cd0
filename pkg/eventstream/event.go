package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/presence/pkg/activity"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDraftScored is emitted after the gate decides a draft.
	EventTypeDraftScored = "presence.draft.scored"

	// EventTypeDraftPublished is emitted after a draft reaches its channel
	// and the location is recorded.
	EventTypeDraftPublished = "presence.draft.published"
)

// DraftEvent is a transport-neutral payload describing a draft decision.
type DraftEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Pass          string      `json:"pass,omitempty"`
	Draft         DraftDigest `json:"draft"`
}

// DraftDigest is the subset of a draft carried on the stream. The body is
// only included once the draft has been published.
type DraftDigest struct {
	ID                int64                 `json:"id"`
	Key               string                `json:"key"`
	Type              activity.ContentType  `json:"type"`
	CommitSHAs        []string              `json:"commit_shas"`
	PromptUUIDs       []string              `json:"prompt_uuids"`
	TemplateKind      activity.TemplateKind `json:"template_kind"`
	TemplateVersion   int                   `json:"template_version"`
	Score             float64               `json:"score"`
	Approved          bool                  `json:"approved"`
	PublishedLocation string                `json:"published_location,omitempty"`
	Body              string                `json:"body,omitempty"`
}

// NewDraftEvent builds an event of the given type for d.
func NewDraftEvent(eventType, pass string, d activity.ContentDraft, now time.Time) *DraftEvent {
	digest := DraftDigest{
		ID:                d.ID,
		Key:               d.Key,
		Type:              d.Type,
		CommitSHAs:        d.CommitSHAs,
		PromptUUIDs:       d.PromptUUIDs,
		TemplateKind:      d.TemplateKind,
		TemplateVersion:   d.TemplateVersion,
		Score:             d.Score,
		Approved:          d.Approved,
		PublishedLocation: d.PublishedLocation,
	}
	if d.Published() {
		digest.Body = d.Body
	}

	return &DraftEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     now.UTC(),
		Pass:          pass,
		Draft:         digest,
	}
}
