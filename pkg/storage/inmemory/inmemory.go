// Package inmemory provides a map-backed storage driver for tests and dry runs.
package inmemory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below; a single lock keeps SaveUnit atomic.
	mu sync.RWMutex

	prompts  map[string]activity.PromptEvent
	commits  map[string]activity.CommitEvent
	consumed map[string]bool

	links  []activity.CorrelationLink
	linkID int64

	drafts  map[int64]activity.ContentDraft
	byKey   map[string]int64
	draftID int64

	templates   map[activity.TemplateKind][]activity.TemplateVersion
	checkpoints map[string]time.Time

	now func() time.Time
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		prompts:     make(map[string]activity.PromptEvent),
		commits:     make(map[string]activity.CommitEvent),
		consumed:    make(map[string]bool),
		drafts:      make(map[int64]activity.ContentDraft),
		byKey:       make(map[string]int64),
		templates:   make(map[activity.TemplateKind][]activity.TemplateVersion),
		checkpoints: make(map[string]time.Time),
		now:         time.Now,
	}
}

// RecordPrompt stores a prompt keyed by UUID.
func (s *Driver) RecordPrompt(_ context.Context, p activity.PromptEvent) (bool, error) {
	if p.UUID == "" {
		return false, errors.New("cannot store prompt without uuid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prompts[p.UUID]; ok {
		return false, nil
	}
	p.Timestamp = activity.Normalize(p.Timestamp)
	s.prompts[p.UUID] = p
	return true, nil
}

// RecordCommit stores a commit keyed by SHA.
func (s *Driver) RecordCommit(_ context.Context, c activity.CommitEvent) (bool, error) {
	if c.SHA == "" {
		return false, errors.New("cannot store commit without sha")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commits[c.SHA]; ok {
		return false, nil
	}
	c.Timestamp = activity.Normalize(c.Timestamp)
	s.commits[c.SHA] = c
	return true, nil
}

func (s *Driver) FindUnlinkedCommitsSince(_ context.Context, since time.Time) ([]activity.CommitEvent, error) {
	since = activity.Normalize(since)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.CommitEvent
	for sha, c := range s.commits {
		if s.consumed[sha] || c.Timestamp.Before(since) {
			continue
		}
		out = append(out, c)
	}
	sortCommits(out)
	return out, nil
}

func (s *Driver) FindPromptsInWindow(_ context.Context, center time.Time, radius time.Duration) ([]activity.PromptEvent, error) {
	center = activity.Normalize(center)
	lo, hi := center.Add(-radius), center.Add(radius)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.PromptEvent
	for _, p := range s.prompts {
		if p.Timestamp.Before(lo) || p.Timestamp.After(hi) {
			continue
		}
		out = append(out, p)
	}
	sortPrompts(out)
	return out, nil
}

func (s *Driver) FindCommitsInRange(_ context.Context, start, end time.Time) ([]activity.CommitEvent, error) {
	start, end = activity.Normalize(start), activity.Normalize(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.CommitEvent
	for _, c := range s.commits {
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	sortCommits(out)
	return out, nil
}

func (s *Driver) FindPromptsInRange(_ context.Context, start, end time.Time) ([]activity.PromptEvent, error) {
	start, end = activity.Normalize(start), activity.Normalize(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.PromptEvent
	for _, p := range s.prompts {
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		out = append(out, p)
	}
	sortPrompts(out)
	return out, nil
}

// RecordLinks appends links, superseding active links whose confidence changed.
func (s *Driver) RecordLinks(_ context.Context, links []activity.CorrelationLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordLinksLocked(links)
	return nil
}

func (s *Driver) recordLinksLocked(links []activity.CorrelationLink) {
	for _, l := range links {
		prev := -1
		for i := range s.links {
			if s.links[i].CommitSHA == l.CommitSHA && s.links[i].PromptUUID == l.PromptUUID && s.links[i].Active() {
				prev = i
				break
			}
		}
		if prev >= 0 && s.links[prev].Confidence == l.Confidence {
			continue
		}

		s.linkID++
		l.ID = s.linkID
		l.Revision = 1
		l.SupersededBy = nil
		l.CreatedAt = activity.Normalize(s.now())
		if prev >= 0 {
			l.Revision = s.links[prev].Revision + 1
			id := l.ID
			s.links[prev].SupersededBy = &id
		}
		s.links = append(s.links, l)
	}
}

func (s *Driver) LinksForCommit(_ context.Context, sha string, includeSuperseded bool) ([]activity.CorrelationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.CorrelationLink
	for _, l := range s.links {
		if l.CommitSHA != sha || (!includeSuperseded && !l.Active()) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// SaveDraft stores a draft keyed by its dedupe key.
func (s *Driver) SaveDraft(_ context.Context, d activity.ContentDraft) (int64, bool, error) {
	if !d.Type.Valid() {
		return 0, false, errors.New("cannot store draft with unknown content type " + strconv.Quote(string(d.Type)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, stored := s.saveDraftLocked(d)
	return id, stored, nil
}

func (s *Driver) saveDraftLocked(d activity.ContentDraft) (int64, bool) {
	if id, ok := s.byKey[d.Key]; ok {
		return id, false
	}

	s.draftID++
	d.ID = s.draftID
	d.Approved = d.Scored && d.Approved
	d.PublishedLocation = ""
	d.PublishedAt = nil
	d.PublishAttempts = 0
	d.PublishAttemptedAt = nil
	d.CreatedAt = activity.Normalize(s.now())
	s.drafts[d.ID] = cloneDraft(d)
	s.byKey[d.Key] = d.ID
	return d.ID, true
}

func (s *Driver) ScoreDraft(_ context.Context, id int64, eval storage.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	}
	if d.Scored {
		return storage.ErrAlreadyScored
	}

	d.Scored = true
	d.Score = eval.Score
	d.Dimensions = maps.Clone(eval.Dimensions)
	d.Rationale = eval.Rationale
	d.Approved = eval.Approved
	s.drafts[id] = d
	return nil
}

// SaveUnit records links, the draft and consumed commits under one lock.
func (s *Driver) SaveUnit(_ context.Context, rec storage.UnitRecord) (int64, bool, error) {
	if !rec.Draft.Type.Valid() {
		return 0, false, errors.New("cannot store draft with unknown content type " + strconv.Quote(string(rec.Draft.Type)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.byKey[rec.Draft.Key]
	var tv *activity.TemplateVersion
	if rec.ScoreTemplate && !exists {
		var err error
		if tv, err = s.templateLocked(rec.Draft.TemplateKind, rec.Draft.TemplateVersion); err != nil {
			return 0, false, err
		}
	}

	s.recordLinksLocked(rec.Links)
	id, stored := s.saveDraftLocked(rec.Draft)
	for _, sha := range rec.Consumed {
		s.consumed[sha] = true
	}
	if tv != nil {
		tv.AvgScore = activity.RunningAverage(tv.AvgScore, tv.Uses, rec.Draft.Score)
		tv.Uses++
	}
	return id, stored, nil
}

func (s *Driver) HasDraft(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byKey[key]
	return ok, nil
}

func (s *Driver) GetDraft(_ context.Context, id int64) (activity.ContentDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return activity.ContentDraft{}, storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	}
	return cloneDraft(d), nil
}

func (s *Driver) ListDrafts(_ context.Context, filter storage.DraftFilter) ([]activity.ContentDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drafts := s.sortedDrafts()
	if filter.Newest {
		slices.Reverse(drafts)
	}

	var out []activity.ContentDraft
	for _, d := range drafts {
		if !filter.Match(d) {
			continue
		}
		out = append(out, cloneDraft(d))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Driver) RecordPublishAttempt(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	}
	at = activity.Normalize(at)
	d.PublishAttempts++
	d.PublishAttemptedAt = &at
	s.drafts[id] = d
	return nil
}

func (s *Driver) MarkPublished(_ context.Context, id int64, location string, at time.Time) error {
	if location == "" {
		return errors.New("cannot mark draft published without a location")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	switch {
	case !ok:
		return storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	case d.Published():
		return storage.ErrAlreadyPublished
	case !d.Scored || !d.Approved:
		return storage.ErrNotApproved
	}

	at = activity.Normalize(at)
	d.PublishedLocation = location
	d.PublishedAt = &at
	s.drafts[id] = d
	return nil
}

func (s *Driver) UnpublishedApprovedDrafts(ctx context.Context) ([]activity.ContentDraft, error) {
	return s.ListDrafts(ctx, storage.DraftFilter{State: activity.StatePending})
}

func (s *Driver) ActiveTemplate(_ context.Context, kind activity.TemplateKind) (activity.TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.templates[kind]
	if len(versions) == 0 {
		return activity.TemplateVersion{}, storage.NotFoundError{Kind: "template", Key: string(kind)}
	}
	return versions[len(versions)-1], nil
}

func (s *Driver) AddTemplate(_ context.Context, kind activity.TemplateKind, text string) (activity.TemplateVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tv := activity.TemplateVersion{
		Kind:      kind,
		Version:   len(s.templates[kind]) + 1,
		Text:      text,
		CreatedAt: activity.Normalize(s.now()),
	}
	s.templates[kind] = append(s.templates[kind], tv)
	return tv, nil
}

func (s *Driver) ListTemplates(_ context.Context, kind activity.TemplateKind) ([]activity.TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.templates[kind]), nil
}

func (s *Driver) RecordTemplateScore(_ context.Context, kind activity.TemplateKind, version int, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tv, err := s.templateLocked(kind, version)
	if err != nil {
		return err
	}
	tv.AvgScore = activity.RunningAverage(tv.AvgScore, tv.Uses, score)
	tv.Uses++
	return nil
}

func (s *Driver) templateLocked(kind activity.TemplateKind, version int) (*activity.TemplateVersion, error) {
	versions := s.templates[kind]
	if version < 1 || version > len(versions) {
		return nil, storage.NotFoundError{Kind: "template", Key: string(kind) + "@" + strconv.Itoa(version)}
	}
	return &versions[version-1], nil
}

func (s *Driver) Checkpoint(_ context.Context, name string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.checkpoints[name]
	return t, ok, nil
}

func (s *Driver) AdvanceCheckpoint(_ context.Context, name string, t time.Time) error {
	t = activity.Normalize(t)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.checkpoints[name]; ok && !t.After(cur) {
		return nil
	}
	s.checkpoints[name] = t
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}

func (s *Driver) sortedDrafts() []activity.ContentDraft {
	out := make([]activity.ContentDraft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneDraft(d activity.ContentDraft) activity.ContentDraft {
	d.CommitSHAs = slices.Clone(d.CommitSHAs)
	d.PromptUUIDs = slices.Clone(d.PromptUUIDs)
	d.Dimensions = maps.Clone(d.Dimensions)
	if d.PublishAttemptedAt != nil {
		t := *d.PublishAttemptedAt
		d.PublishAttemptedAt = &t
	}
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		d.PublishedAt = &t
	}
	return d
}

func sortCommits(cs []activity.CommitEvent) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Timestamp.Equal(cs[j].Timestamp) {
			return cs[i].SHA < cs[j].SHA
		}
		return cs[i].Timestamp.Before(cs[j].Timestamp)
	})
}

func sortPrompts(ps []activity.PromptEvent) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Timestamp.Equal(ps[j].Timestamp) {
			return ps[i].UUID < ps[j].UUID
		}
		return ps[i].Timestamp.Before(ps[j].Timestamp)
	})
}
