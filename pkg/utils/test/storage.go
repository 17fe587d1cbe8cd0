package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/storage"
)

// Noon is the reference commit time used across store and pipeline specs.
var Noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// NewTestCommit creates a commit at the given time.
func NewTestCommit(sha string, at time.Time) activity.CommitEvent {
	return activity.CommitEvent{
		SHA:       sha,
		Repo:      "presence",
		Message:   "feat: " + sha + "\n\nbody",
		Timestamp: at,
		Author:    "dev",
		URL:       "https://github.com/dev/presence/commit/" + sha,
	}
}

// NewTestPrompt creates a prompt at the given time.
func NewTestPrompt(uuid string, at time.Time) activity.PromptEvent {
	return activity.PromptEvent{
		UUID:        uuid,
		SessionID:   "session-1",
		ProjectPath: "/home/dev/presence",
		Timestamp:   at,
		Text:        "prompt " + uuid,
	}
}

// NewTestDraft creates an unscored post draft over the given commits.
func NewTestDraft(shas ...string) activity.ContentDraft {
	return activity.ContentDraft{
		Key:             activity.DraftKey(activity.ContentPost, "", shas),
		Type:            activity.ContentPost,
		CommitSHAs:      shas,
		PromptUUIDs:     []string{},
		Body:            "shipped " + shas[0],
		TemplateKind:    activity.ContentPost.TemplateKind(),
		TemplateVersion: 1,
	}
}

// Scored returns d with a gate outcome applied.
func Scored(d activity.ContentDraft, score float64, approved bool) activity.ContentDraft {
	d.Scored = true
	d.Score = score
	d.Approved = approved
	d.Rationale = "fixed"
	d.Dimensions = map[string]float64{"clarity": score}
	return d
}

// DescribeStorageDriver registers the behaviour every storage.Driver must
// share. Call it inside a Describe; newDriver is invoked before each spec.
func DescribeStorageDriver(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver(ctx)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	Describe("event ingestion", func() {
		It("stores a commit exactly once", func() {
			c := NewTestCommit("abc123", Noon)

			stored, err := driver.RecordCommit(ctx, c)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())

			stored, err = driver.RecordCommit(ctx, c)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())

			commits, err := driver.FindCommitsInRange(ctx, Noon.Add(-time.Hour), Noon.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(HaveLen(1))
			Expect(commits[0].SHA).To(Equal("abc123"))
			Expect(commits[0].Message).To(Equal(c.Message))
			Expect(commits[0].Timestamp.Equal(Noon)).To(BeTrue())
		})

		It("stores a prompt exactly once", func() {
			p := NewTestPrompt("p1", Noon)

			stored, err := driver.RecordPrompt(ctx, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())

			stored, err = driver.RecordPrompt(ctx, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())

			prompts, err := driver.FindPromptsInRange(ctx, Noon.Add(-time.Hour), Noon.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(prompts).To(HaveLen(1))
			Expect(prompts[0].Text).To(Equal("prompt p1"))
		})

		It("rejects events without a natural key", func() {
			_, err := driver.RecordCommit(ctx, activity.CommitEvent{Timestamp: Noon})
			Expect(err).To(HaveOccurred())
			_, err = driver.RecordPrompt(ctx, activity.PromptEvent{Timestamp: Noon})
			Expect(err).To(HaveOccurred())
		})

		It("normalizes timestamps to UTC", func() {
			loc := time.FixedZone("PST", -8*3600)
			_, err := driver.RecordCommit(ctx, NewTestCommit("tz", Noon.In(loc)))
			Expect(err).NotTo(HaveOccurred())

			commits, err := driver.FindCommitsInRange(ctx, Noon, Noon.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(HaveLen(1))
			Expect(commits[0].Timestamp.Location()).To(Equal(time.UTC))
		})
	})

	Describe("FindPromptsInWindow", func() {
		BeforeEach(func() {
			for uuid, at := range map[string]time.Time{
				"before": Noon.Add(-31 * time.Minute),
				"edge":   Noon.Add(-30 * time.Minute),
				"near":   Noon.Add(5 * time.Minute),
				"after":  Noon.Add(31 * time.Minute),
			} {
				_, err := driver.RecordPrompt(ctx, NewTestPrompt(uuid, at))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns prompts inside the inclusive window in time order", func() {
			prompts, err := driver.FindPromptsInWindow(ctx, Noon, 30*time.Minute)
			Expect(err).NotTo(HaveOccurred())

			uuids := make([]string, len(prompts))
			for i, p := range prompts {
				uuids[i] = p.UUID
			}
			Expect(uuids).To(Equal([]string{"edge", "near"}))
		})
	})

	Describe("FindCommitsInRange", func() {
		It("is half-open", func() {
			for _, c := range []activity.CommitEvent{
				NewTestCommit("start", Noon),
				NewTestCommit("end", Noon.Add(24*time.Hour)),
			} {
				_, err := driver.RecordCommit(ctx, c)
				Expect(err).NotTo(HaveOccurred())
			}

			commits, err := driver.FindCommitsInRange(ctx, Noon, Noon.Add(24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(HaveLen(1))
			Expect(commits[0].SHA).To(Equal("start"))
		})
	})

	Describe("correlation links", func() {
		It("appends a new revision when confidence changes", func() {
			link := activity.CorrelationLink{CommitSHA: "abc123", PromptUUID: "p1", Confidence: 0.55, Distance: 15 * time.Minute}
			Expect(driver.RecordLinks(ctx, []activity.CorrelationLink{link})).To(Succeed())

			link.Confidence = 0.7
			Expect(driver.RecordLinks(ctx, []activity.CorrelationLink{link})).To(Succeed())

			active, err := driver.LinksForCommit(ctx, "abc123", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			Expect(active[0].Confidence).To(Equal(0.7))
			Expect(active[0].Revision).To(Equal(2))
			Expect(active[0].Distance).To(Equal(15 * time.Minute))

			all, err := driver.LinksForCommit(ctx, "abc123", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[1].Confidence).To(Equal(0.55))
			Expect(all[1].SupersededBy).NotTo(BeNil())
			Expect(*all[1].SupersededBy).To(Equal(all[0].ID))
		})

		It("leaves an identical active link alone", func() {
			link := activity.CorrelationLink{CommitSHA: "abc123", PromptUUID: "p1", Confidence: 0.55}
			Expect(driver.RecordLinks(ctx, []activity.CorrelationLink{link})).To(Succeed())
			Expect(driver.RecordLinks(ctx, []activity.CorrelationLink{link})).To(Succeed())

			all, err := driver.LinksForCommit(ctx, "abc123", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})

	Describe("drafts", func() {
		It("deduplicates by key", func() {
			d := NewTestDraft("abc123")
			id, stored, err := driver.SaveDraft(ctx, d)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())

			again, stored, err := driver.SaveDraft(ctx, d)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
			Expect(again).To(Equal(id))

			has, err := driver.HasDraft(ctx, d.Key)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())
		})

		It("round-trips every field", func() {
			d := Scored(NewTestDraft("a", "b"), 0.8, true)
			d.PromptUUIDs = []string{"p1", "p2"}
			id, _, err := driver.SaveDraft(ctx, d)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.GetDraft(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(id))
			Expect(got.Key).To(Equal(d.Key))
			Expect(got.Type).To(Equal(activity.ContentPost))
			Expect(got.CommitSHAs).To(Equal([]string{"a", "b"}))
			Expect(got.PromptUUIDs).To(Equal([]string{"p1", "p2"}))
			Expect(got.Body).To(Equal(d.Body))
			Expect(got.TemplateKind).To(Equal(d.TemplateKind))
			Expect(got.TemplateVersion).To(Equal(1))
			Expect(got.Score).To(Equal(0.8))
			Expect(got.Dimensions).To(HaveKeyWithValue("clarity", 0.8))
			Expect(got.State()).To(Equal(activity.StatePending))
		})

		It("returns a NotFoundError for unknown ids", func() {
			_, err := driver.GetDraft(ctx, 4242)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("scores a draft exactly once", func() {
			id, _, err := driver.SaveDraft(ctx, NewTestDraft("abc123"))
			Expect(err).NotTo(HaveOccurred())

			eval := storage.Evaluation{Score: 0.65, Rationale: "flat", Dimensions: map[string]float64{"clarity": 0.65}}
			Expect(driver.ScoreDraft(ctx, id, eval)).To(Succeed())
			Expect(driver.ScoreDraft(ctx, id, storage.Evaluation{Score: 0.9, Approved: true})).To(MatchError(storage.ErrAlreadyScored))

			got, err := driver.GetDraft(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Score).To(Equal(0.65))
			Expect(got.State()).To(Equal(activity.StateSuppressed))
		})

		It("filters by state and type", func() {
			_, _, err := driver.SaveDraft(ctx, Scored(NewTestDraft("a"), 0.9, true))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = driver.SaveDraft(ctx, Scored(NewTestDraft("b"), 0.5, false))
			Expect(err).NotTo(HaveOccurred())

			pending, err := driver.ListDrafts(ctx, storage.DraftFilter{State: activity.StatePending})
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].CommitSHAs).To(Equal([]string{"a"}))

			suppressed, err := driver.ListDrafts(ctx, storage.DraftFilter{State: activity.StateSuppressed, Type: activity.ContentPost})
			Expect(err).NotTo(HaveOccurred())
			Expect(suppressed).To(HaveLen(1))

			threads, err := driver.ListDrafts(ctx, storage.DraftFilter{Type: activity.ContentThread})
			Expect(err).NotTo(HaveOccurred())
			Expect(threads).To(BeEmpty())
		})

		It("keeps the newest drafts under a limit when asked", func() {
			for _, sha := range []string{"a", "b", "c"} {
				_, _, err := driver.SaveDraft(ctx, Scored(NewTestDraft(sha), 0.9, true))
				Expect(err).NotTo(HaveOccurred())
			}

			oldest, err := driver.ListDrafts(ctx, storage.DraftFilter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(oldest).To(HaveLen(2))
			Expect(oldest[0].CommitSHAs).To(Equal([]string{"a"}))

			newest, err := driver.ListDrafts(ctx, storage.DraftFilter{Limit: 2, Newest: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(newest).To(HaveLen(2))
			Expect(newest[0].CommitSHAs).To(Equal([]string{"c"}))
			Expect(newest[1].CommitSHAs).To(Equal([]string{"b"}))
		})
	})

	Describe("publication", func() {
		It("marks an approved draft published exactly once", func() {
			id, _, err := driver.SaveDraft(ctx, Scored(NewTestDraft("abc123"), 0.85, true))
			Expect(err).NotTo(HaveOccurred())

			queue, err := driver.UnpublishedApprovedDrafts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(HaveLen(1))

			Expect(driver.MarkPublished(ctx, id, "https://x.com/dev/status/1", Noon)).To(Succeed())
			Expect(driver.MarkPublished(ctx, id, "https://x.com/dev/status/2", Noon)).To(MatchError(storage.ErrAlreadyPublished))

			got, err := driver.GetDraft(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PublishedLocation).To(Equal("https://x.com/dev/status/1"))
			Expect(got.PublishedAt).NotTo(BeNil())

			queue, err = driver.UnpublishedApprovedDrafts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(BeEmpty())
		})

		It("refuses to publish a suppressed draft", func() {
			id, _, err := driver.SaveDraft(ctx, Scored(NewTestDraft("abc123"), 0.65, false))
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.MarkPublished(ctx, id, "https://x.com/dev/status/1", Noon)).To(MatchError(storage.ErrNotApproved))

			queue, err := driver.UnpublishedApprovedDrafts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(BeEmpty())
		})

		It("counts publish attempts", func() {
			id, _, err := driver.SaveDraft(ctx, Scored(NewTestDraft("abc123"), 0.85, true))
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.RecordPublishAttempt(ctx, id, Noon)).To(Succeed())
			Expect(driver.RecordPublishAttempt(ctx, id, Noon.Add(time.Minute))).To(Succeed())

			got, err := driver.GetDraft(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PublishAttempts).To(Equal(2))
			Expect(got.PublishAttemptedAt.Equal(Noon.Add(time.Minute))).To(BeTrue())
			Expect(got.Published()).To(BeFalse())
		})
	})

	Describe("SaveUnit", func() {
		It("writes links, draft and consumed commits together", func() {
			_, err := driver.RecordCommit(ctx, NewTestCommit("abc123", Noon))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.RecordCommit(ctx, NewTestCommit("def456", Noon.Add(time.Minute)))
			Expect(err).NotTo(HaveOccurred())

			id, stored, err := driver.SaveUnit(ctx, storage.UnitRecord{
				Draft:    Scored(NewTestDraft("abc123"), 0.8, true),
				Links:    []activity.CorrelationLink{{CommitSHA: "abc123", PromptUUID: "p1", Confidence: 0.55}},
				Consumed: []string{"abc123"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())
			Expect(id).NotTo(BeZero())

			links, err := driver.LinksForCommit(ctx, "abc123", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(HaveLen(1))

			unlinked, err := driver.FindUnlinkedCommitsSince(ctx, Noon.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(unlinked).To(HaveLen(1))
			Expect(unlinked[0].SHA).To(Equal("def456"))
		})

		It("writes nothing when the draft cannot be stored", func() {
			_, err := driver.RecordCommit(ctx, NewTestCommit("abc123", Noon))
			Expect(err).NotTo(HaveOccurred())

			bad := Scored(NewTestDraft("abc123"), 0.8, true)
			bad.Type = "newsletter"
			_, _, err = driver.SaveUnit(ctx, storage.UnitRecord{
				Draft:    bad,
				Links:    []activity.CorrelationLink{{CommitSHA: "abc123", PromptUUID: "p1", Confidence: 0.55}},
				Consumed: []string{"abc123"},
			})
			Expect(err).To(HaveOccurred())

			links, err := driver.LinksForCommit(ctx, "abc123", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(BeEmpty())

			unlinked, err := driver.FindUnlinkedCommitsSince(ctx, Noon.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(unlinked).To(HaveLen(1))
			Expect(unlinked[0].SHA).To(Equal("abc123"))
		})

		It("folds the score into the template once per stored draft", func() {
			kind := activity.ContentPost.TemplateKind()
			_, err := driver.AddTemplate(ctx, kind, "post")
			Expect(err).NotTo(HaveOccurred())

			d := Scored(NewTestDraft("abc123"), 0.8, true)
			d.TemplateKind = kind
			d.TemplateVersion = 1
			rec := storage.UnitRecord{Draft: d, ScoreTemplate: true}

			_, stored, err := driver.SaveUnit(ctx, rec)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())
			_, stored, err = driver.SaveUnit(ctx, rec)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())

			tv, err := driver.ActiveTemplate(ctx, kind)
			Expect(err).NotTo(HaveOccurred())
			Expect(tv.Uses).To(Equal(1))
			Expect(tv.AvgScore).To(BeNumerically("~", 0.8, 1e-9))
		})

		It("rolls the unit back when its template is missing", func() {
			_, err := driver.RecordCommit(ctx, NewTestCommit("abc123", Noon))
			Expect(err).NotTo(HaveOccurred())

			d := Scored(NewTestDraft("abc123"), 0.8, true)
			d.TemplateKind = activity.ContentPost.TemplateKind()
			d.TemplateVersion = 3
			_, _, err = driver.SaveUnit(ctx, storage.UnitRecord{
				Draft:         d,
				Links:         []activity.CorrelationLink{{CommitSHA: "abc123", PromptUUID: "p1", Confidence: 0.55}},
				Consumed:      []string{"abc123"},
				ScoreTemplate: true,
			})
			Expect(storage.IsNotFound(err)).To(BeTrue())

			has, err := driver.HasDraft(ctx, d.Key)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())

			links, err := driver.LinksForCommit(ctx, "abc123", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(BeEmpty())

			unlinked, err := driver.FindUnlinkedCommitsSince(ctx, Noon.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(unlinked).To(HaveLen(1))
		})
	})

	Describe("templates", func() {
		It("versions templates monotonically per kind", func() {
			_, err := driver.ActiveTemplate(ctx, activity.KindRubric)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			v1, err := driver.AddTemplate(ctx, activity.KindRubric, "one")
			Expect(err).NotTo(HaveOccurred())
			Expect(v1.Version).To(Equal(1))
			v2, err := driver.AddTemplate(ctx, activity.KindRubric, "two")
			Expect(err).NotTo(HaveOccurred())
			Expect(v2.Version).To(Equal(2))
			other, err := driver.AddTemplate(ctx, activity.ContentPost.TemplateKind(), "post")
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Version).To(Equal(1))

			active, err := driver.ActiveTemplate(ctx, activity.KindRubric)
			Expect(err).NotTo(HaveOccurred())
			Expect(active.Text).To(Equal("two"))

			all, err := driver.ListTemplates(ctx, activity.KindRubric)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
		})

		It("keeps a running average score", func() {
			kind := activity.ContentPost.TemplateKind()
			_, err := driver.AddTemplate(ctx, kind, "post")
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.RecordTemplateScore(ctx, kind, 1, 0.8)).To(Succeed())
			Expect(driver.RecordTemplateScore(ctx, kind, 1, 0.6)).To(Succeed())

			tv, err := driver.ActiveTemplate(ctx, kind)
			Expect(err).NotTo(HaveOccurred())
			Expect(tv.Uses).To(Equal(2))
			Expect(tv.AvgScore).To(BeNumerically("~", 0.7, 1e-9))

			err = driver.RecordTemplateScore(ctx, kind, 9, 0.5)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("checkpoints", func() {
		It("only moves forward", func() {
			_, ok, err := driver.Checkpoint(ctx, "commits")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(driver.AdvanceCheckpoint(ctx, "commits", Noon)).To(Succeed())
			Expect(driver.AdvanceCheckpoint(ctx, "commits", Noon.Add(-time.Hour))).To(Succeed())

			t, ok, err := driver.Checkpoint(ctx, "commits")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(t.Equal(Noon)).To(BeTrue())

			Expect(driver.AdvanceCheckpoint(ctx, "commits", Noon.Add(time.Hour))).To(Succeed())
			t, _, err = driver.Checkpoint(ctx, "commits")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Equal(Noon.Add(time.Hour))).To(BeTrue())
		})
	})
}
