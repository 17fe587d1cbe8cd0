// Package storage defines the event store: the durable record of ingested
// commits and prompts, correlation links, content drafts, versioned templates
// and poll checkpoints.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
)

// Driver is the full event store. Drivers enforce natural-key uniqueness so
// that re-ingestion and overlapping passes are no-ops rather than errors.
type Driver interface {
	EventStore
	DraftStore
	TemplateStore
	CheckpointStore

	// SaveUnit writes one unit of pipeline work in a single transaction:
	// the unit's correlation links, its draft, the consumed marker on its
	// commits and, when requested, the draft's score on its generation
	// template. Either all of it is visible afterwards or none of it is.
	// The template score is only folded in when the draft is newly stored.
	SaveUnit(ctx context.Context, rec UnitRecord) (int64, bool, error)

	// Close closes the store and releases any resources.
	Close() error
}

// EventStore persists ingested events and the links between them.
type EventStore interface {
	// RecordPrompt stores a prompt. Returns true if it was newly inserted,
	// false if a prompt with the same UUID already exists.
	RecordPrompt(ctx context.Context, p activity.PromptEvent) (bool, error)

	// RecordCommit stores a commit. Returns true if it was newly inserted,
	// false if a commit with the same SHA already exists.
	RecordCommit(ctx context.Context, c activity.CommitEvent) (bool, error)

	// FindUnlinkedCommitsSince returns commits at or after since that no
	// saved unit has consumed yet, oldest first.
	FindUnlinkedCommitsSince(ctx context.Context, since time.Time) ([]activity.CommitEvent, error)

	// FindPromptsInWindow returns prompts within [center-radius, center+radius],
	// oldest first.
	FindPromptsInWindow(ctx context.Context, center time.Time, radius time.Duration) ([]activity.PromptEvent, error)

	// FindCommitsInRange returns commits in [start, end), oldest first.
	FindCommitsInRange(ctx context.Context, start, end time.Time) ([]activity.CommitEvent, error)

	// FindPromptsInRange returns prompts in [start, end), oldest first.
	FindPromptsInRange(ctx context.Context, start, end time.Time) ([]activity.PromptEvent, error)

	// RecordLinks appends links. A link whose (commit, prompt) pair already
	// has an active link with a different confidence supersedes it; an
	// identical active link is left alone.
	RecordLinks(ctx context.Context, links []activity.CorrelationLink) error

	// LinksForCommit returns the links for a commit, newest revision first.
	LinksForCommit(ctx context.Context, sha string, includeSuperseded bool) ([]activity.CorrelationLink, error)
}

// DraftStore persists content drafts and their publication outcome.
type DraftStore interface {
	// SaveDraft stores a draft keyed by its dedupe key. Returns the draft id
	// and true if it was newly inserted, or the existing id and false.
	SaveDraft(ctx context.Context, d activity.ContentDraft) (int64, bool, error)

	// ScoreDraft records the gate outcome on an unscored draft. A draft is
	// scored exactly once; scoring it again returns ErrAlreadyScored.
	ScoreDraft(ctx context.Context, id int64, eval Evaluation) error

	HasDraft(ctx context.Context, key string) (bool, error)
	GetDraft(ctx context.Context, id int64) (activity.ContentDraft, error)
	ListDrafts(ctx context.Context, filter DraftFilter) ([]activity.ContentDraft, error)

	// RecordPublishAttempt notes that a publish call is about to be made,
	// so that an ambiguous outcome can be reconciled by an operator.
	RecordPublishAttempt(ctx context.Context, id int64, at time.Time) error

	// MarkPublished sets the published location on an approved, unpublished
	// draft. It never clears or replaces a location.
	MarkPublished(ctx context.Context, id int64, location string, at time.Time) error

	// UnpublishedApprovedDrafts returns approved drafts with no published
	// location, oldest first.
	UnpublishedApprovedDrafts(ctx context.Context) ([]activity.ContentDraft, error)
}

// TemplateStore persists versioned generation templates and judge rubrics.
type TemplateStore interface {
	// ActiveTemplate returns the highest version for kind.
	ActiveTemplate(ctx context.Context, kind activity.TemplateKind) (activity.TemplateVersion, error)

	// AddTemplate appends a new version for kind and returns it.
	AddTemplate(ctx context.Context, kind activity.TemplateKind, text string) (activity.TemplateVersion, error)

	// ListTemplates returns all versions for kind, oldest first.
	ListTemplates(ctx context.Context, kind activity.TemplateKind) ([]activity.TemplateVersion, error)

	// RecordTemplateScore folds one gate score into the running average
	// of a template version and increments its usage count.
	RecordTemplateScore(ctx context.Context, kind activity.TemplateKind, version int, score float64) error
}

// CheckpointStore persists named poll cursors.
type CheckpointStore interface {
	// Checkpoint returns the cursor for name and whether it exists.
	Checkpoint(ctx context.Context, name string) (time.Time, bool, error)

	// AdvanceCheckpoint moves the cursor for name forward to t. Moving a
	// cursor backwards is a no-op.
	AdvanceCheckpoint(ctx context.Context, name string, t time.Time) error
}

// UnitRecord is everything one unit of pipeline work persists.
type UnitRecord struct {
	Draft    activity.ContentDraft
	Links    []activity.CorrelationLink
	Consumed []string

	// ScoreTemplate folds the draft's gate score into the running average of
	// the template version that generated it.
	ScoreTemplate bool
}

// Evaluation is the gate outcome recorded on a draft.
type Evaluation struct {
	Score      float64
	Dimensions map[string]float64
	Rationale  string
	Approved   bool
}

// DraftFilter narrows ListDrafts. Zero values match everything.
type DraftFilter struct {
	State activity.DraftState
	Type  activity.ContentType
	Limit int

	// Newest lists newest first, so a Limit keeps the latest drafts.
	Newest bool
}

// Match reports whether d passes the filter, ignoring Limit.
func (f DraftFilter) Match(d activity.ContentDraft) bool {
	if f.State != "" && d.State() != f.State {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}
