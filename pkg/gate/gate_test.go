package gate_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/gate"
	"github.com/papercomputeco/presence/pkg/llm"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

// uniform returns a judgement scoring every dimension v out of 10.
func uniform(v float64) gate.Judgement {
	dims := map[string]float64{}
	for _, d := range gate.Dimensions {
		dims[d] = v
	}
	return gate.Judgement{Dimensions: dims, Rationale: "  Specific and honest.  "}
}

var _ = Describe("Score", func() {
	It("approves exactly at the threshold", func() {
		ev, err := gate.Score(uniform(7), 0.7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Score).To(Equal(0.7))
		Expect(ev.Approved).To(BeTrue())
	})

	It("suppresses just below the threshold", func() {
		ev, err := gate.Score(uniform(6.5), 0.7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Score).To(BeNumerically("~", 0.65, 1e-9))
		Expect(ev.Approved).To(BeFalse())
	})

	It("uses the unweighted mean and clamps out-of-range values", func() {
		j := uniform(10)
		j.Dimensions[gate.DimClarity] = 15
		j.Dimensions[gate.DimVoiceMatch] = -3
		ev, err := gate.Score(j, 0.7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Dimensions[gate.DimClarity]).To(Equal(1.0))
		Expect(ev.Dimensions[gate.DimVoiceMatch]).To(Equal(0.0))
		Expect(ev.Score).To(BeNumerically("~", 0.8, 1e-9))
	})

	It("keeps the rationale verbatim", func() {
		ev, err := gate.Score(uniform(8), 0.7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Rationale).To(Equal("  Specific and honest.  "))
	})

	It("rejects a judgement missing a dimension", func() {
		j := uniform(9)
		delete(j.Dimensions, gate.DimAccessibility)
		_, err := gate.Score(j, 0.7)
		Expect(err).To(MatchError(ContainSubstring("accessibility")))
	})
})

var _ = Describe("Gate", func() {
	var (
		ctx     context.Context
		store   *inmemory.Driver
		reply   gate.Judgement
		judgeEr error
		rubric  string
		g       *gate.Gate
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		reply = uniform(8)
		judgeEr = nil
		g = gate.New(gate.JudgeFunc(func(_ context.Context, r string, _ gate.Input) (gate.Judgement, error) {
			rubric = r
			return reply, judgeEr
		}), store)
	})

	draftFrom := func(ctx context.Context) activity.ContentDraft {
		tv, err := store.AddTemplate(ctx, activity.ContentPost.TemplateKind(), "t")
		Expect(err).NotTo(HaveOccurred())
		d := testutils.NewTestDraft("abc123")
		d.TemplateKind = tv.Kind
		d.TemplateVersion = tv.Version
		return d
	}

	It("seeds the default rubric on first use", func() {
		_, err := g.Evaluate(ctx, testutils.NewTestDraft("abc123"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rubric).To(Equal(gate.DefaultRubric))

		versions, err := store.ListTemplates(ctx, activity.KindRubric)
		Expect(err).NotTo(HaveOccurred())
		Expect(versions).To(HaveLen(1))
	})

	It("uses the newest rubric version", func() {
		_, err := store.AddTemplate(ctx, activity.KindRubric, "v1")
		Expect(err).NotTo(HaveOccurred())
		_, err = store.AddTemplate(ctx, activity.KindRubric, "v2")
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Evaluate(ctx, testutils.NewTestDraft("abc123"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rubric).To(Equal("v2"))
	})

	It("applies the outcome and leaves template statistics to the saved unit", func() {
		d := draftFrom(ctx)

		scored, err := g.Apply(ctx, d, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(scored.Scored).To(BeTrue())
		Expect(scored.Approved).To(BeTrue())
		Expect(scored.Score).To(BeNumerically("~", 0.8, 1e-9))
		Expect(scored.State()).To(Equal(activity.StatePending))

		tv, err := store.ActiveTemplate(ctx, d.TemplateKind)
		Expect(err).NotTo(HaveOccurred())
		Expect(tv.Uses).To(Equal(0))

		_, stored, err := store.SaveUnit(ctx, storage.UnitRecord{Draft: scored, ScoreTemplate: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeTrue())

		tv, err = store.ActiveTemplate(ctx, d.TemplateKind)
		Expect(err).NotTo(HaveOccurred())
		Expect(tv.Uses).To(Equal(1))
		Expect(tv.AvgScore).To(BeNumerically("~", 0.8, 1e-9))
	})

	It("suppresses a draft scoring 0.65", func() {
		reply = uniform(6.5)

		scored, err := g.Apply(ctx, draftFrom(ctx), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(scored.Approved).To(BeFalse())
		Expect(scored.State()).To(Equal(activity.StateSuppressed))
	})

	It("refuses to score a draft twice", func() {
		d := testutils.Scored(testutils.NewTestDraft("abc123"), 0.9, true)
		_, err := g.Apply(ctx, d, nil)
		Expect(err).To(MatchError(storage.ErrAlreadyScored))
	})

	It("wraps judge failures and malformed replies in ErrJudgement", func() {
		judgeEr = &llm.StatusError{Provider: "openai", Code: 500}
		_, err := g.Evaluate(ctx, testutils.NewTestDraft("abc123"), nil)
		Expect(err).To(MatchError(gate.ErrJudgement))

		judgeEr = nil
		reply = gate.Judgement{Dimensions: map[string]float64{gate.DimClarity: 9}}
		_, err = g.Evaluate(ctx, testutils.NewTestDraft("abc123"), nil)
		Expect(err).To(MatchError(gate.ErrJudgement))
	})

	It("treats a judge timeout as ErrJudgement", func() {
		g = gate.New(gate.JudgeFunc(func(ctx context.Context, _ string, _ gate.Input) (gate.Judgement, error) {
			<-ctx.Done()
			return gate.Judgement{}, ctx.Err()
		}), store, gate.WithTimeout(10*time.Millisecond))

		_, err := g.Evaluate(ctx, testutils.NewTestDraft("abc123"), nil)
		Expect(err).To(MatchError(gate.ErrJudgement))
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("shows the judge the draft sources", func() {
		var seen gate.Input
		g = gate.New(gate.JudgeFunc(func(_ context.Context, _ string, in gate.Input) (gate.Judgement, error) {
			seen = in
			return uniform(8), nil
		}), store)

		u := activity.Unit{
			Commit:  activity.CommitEvent{SHA: "abc123", Repo: "presence", Message: "fix window\n\nlong body"},
			Prompts: []activity.PromptEvent{{UUID: "p1", Text: "why off by one"}},
		}
		_, err := g.Evaluate(ctx, testutils.NewTestDraft("abc123"), []activity.Unit{u})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen.Commits).To(Equal([]string{"[presence] fix window"}))
		Expect(seen.Prompts).To(Equal([]string{"why off by one"}))
	})
})

var _ = Describe("ParseJudgement", func() {
	It("parses a JSON reply wrapped in prose", func() {
		j, err := gate.ParseJudgement("Here you go:\n```json\n{\"authenticity\": 8, \"Insight_Depth\": 6.5, \"clarity\": 9, \"voice_match\": 7, \"accessibility\": 8, \"feedback\": \"Good.\"}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(j.Dimensions).To(HaveKeyWithValue("insight_depth", 6.5))
		Expect(j.Rationale).To(Equal("Good."))
	})

	It("falls back to score lines", func() {
		reply := "AUTHENTICITY: 8/10\n**Insight Depth**: 7/10\nCLARITY: 9/10\nVOICE_MATCH: 6/10\nACCESSIBILITY: 7.5/10\nOVERALL: 7/10\nFEEDBACK: Tighten the opening."
		j, err := gate.ParseJudgement(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(j.Dimensions).To(HaveKeyWithValue("insight_depth", 7.0))
		Expect(j.Dimensions).To(HaveKeyWithValue("accessibility", 7.5))
		Expect(j.Rationale).To(Equal("Tighten the opening."))

		_, err = gate.Score(j, 0.7)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a reply with no scores", func() {
		_, err := gate.ParseJudgement("I cannot evaluate this.")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LLMJudge", func() {
	It("fills the rubric and asks for JSON", func() {
		var got llm.Request
		j := gate.NewLLMJudge(func(_ context.Context, req llm.Request) (string, error) {
			got = req
			return `{"authenticity":8,"insight_depth":8,"clarity":8,"voice_match":8,"accessibility":8}`, nil
		})

		res, err := j.Judge(context.Background(), "{content_type}: {content} / {source_prompts}", gate.Input{
			Type:    activity.ContentPost,
			Content: "hello",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Dimensions).To(HaveLen(5))
		Expect(got.JSON).To(BeTrue())
		Expect(got.Prompt).To(Equal("post: hello / (none)"))
	})
})
