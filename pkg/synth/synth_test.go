package synth_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/llm"
	"github.com/papercomputeco/presence/pkg/synth"
)

var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func unit(sha string, prompts ...string) activity.Unit {
	u := activity.Unit{Commit: activity.CommitEvent{
		SHA:       sha,
		Repo:      "presence",
		Message:   "commit " + sha,
		Timestamp: noon,
	}}
	for _, p := range prompts {
		u.Prompts = append(u.Prompts, activity.PromptEvent{UUID: sha + "-" + p, Text: p, Timestamp: noon})
	}
	return u
}

func postTemplate() activity.TemplateVersion {
	return activity.TemplateVersion{
		Kind:    activity.ContentPost.TemplateKind(),
		Version: 3,
		Text:    "{commits}|{prompts}",
	}
}

var _ = Describe("Synthesizer", func() {
	var (
		ctx      context.Context
		captured synth.Context
		reply    string
		genErr   error
		s        *synth.Synthesizer
	)

	BeforeEach(func() {
		ctx = context.Background()
		reply = "  shipped the window fix  \n"
		genErr = nil
		gen := synth.GeneratorFunc(func(_ context.Context, _ string, input synth.Context) (string, error) {
			captured = input
			return reply, genErr
		})
		s = synth.New(gen, synth.WithClock(func() time.Time { return noon }))
	})

	It("builds a per-commit draft with sources, template and trimmed body", func() {
		d, err := s.Synthesize(ctx, synth.Request{
			Type:     activity.ContentPost,
			Units:    []activity.Unit{unit("abc123", "p1", "p2")},
			Template: postTemplate(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Body).To(Equal("shipped the window fix"))
		Expect(d.Key).To(Equal("post:abc123"))
		Expect(d.CommitSHAs).To(Equal([]string{"abc123"}))
		Expect(d.PromptUUIDs).To(Equal([]string{"abc123-p1", "abc123-p2"}))
		Expect(d.TemplateKind).To(Equal(activity.TemplateKind("generate:post")))
		Expect(d.TemplateVersion).To(Equal(3))
		Expect(d.Scored).To(BeFalse())
		Expect(d.CreatedAt).To(Equal(noon))
	})

	It("keys digests on their period", func() {
		d, err := s.Synthesize(ctx, synth.Request{
			Type:   activity.ContentThread,
			Units:  []activity.Unit{unit("a"), unit("b")},
			Period: "2024-05-01",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Key).To(Equal("thread:2024-05-01"))
		Expect(d.CommitSHAs).To(Equal([]string{"a", "b"}))
	})

	It("produces commit-only content for a unit without prompts", func() {
		_, err := s.Synthesize(ctx, synth.Request{Type: activity.ContentPost, Units: []activity.Unit{unit("solo")}})
		Expect(err).NotTo(HaveOccurred())
		Expect(captured.Prompts).To(BeEmpty())
		Expect(captured.Render("{prompts}")).To(Equal("(no prompts recorded)"))
	})

	It("wraps generator failures in ErrGeneration", func() {
		genErr = &llm.StatusError{Provider: "anthropic", Code: 529, Body: "overloaded"}

		_, err := s.Synthesize(ctx, synth.Request{Type: activity.ContentPost, Units: []activity.Unit{unit("x")}})
		Expect(err).To(MatchError(synth.ErrGeneration))

		var se *llm.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
	})

	It("treats empty output as a generation failure", func() {
		reply = " \n\t"

		_, err := s.Synthesize(ctx, synth.Request{Type: activity.ContentPost, Units: []activity.Unit{unit("x")}})
		Expect(err).To(MatchError(synth.ErrGeneration))
	})

	It("bounds the call with the configured timeout", func() {
		slow := synth.GeneratorFunc(func(ctx context.Context, _ string, _ synth.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		s = synth.New(slow, synth.WithTimeout(10*time.Millisecond))

		_, err := s.Synthesize(ctx, synth.Request{Type: activity.ContentPost, Units: []activity.Unit{unit("x")}})
		Expect(err).To(MatchError(synth.ErrGeneration))
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("rejects an empty request", func() {
		_, err := s.Synthesize(ctx, synth.Request{Type: activity.ContentPost})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("BuildContext", func() {
	It("truncates prompts and caps them per unit and overall", func() {
		long := strings.Repeat("x", 900)
		var units []activity.Unit
		for i := range 6 {
			units = append(units, unit(fmt.Sprintf("c%d", i), long, "b", "c", "d", "e", "f", "g"))
		}

		c, err := synth.BuildContext(synth.Request{Type: activity.ContentThread, Units: units})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Prompts).To(HaveLen(synth.MaxPromptsOverall))
		Expect(c.Prompts[0]).To(HaveLen(synth.MaxPromptChars))
		Expect(c.Prompts[5]).To(HaveLen(synth.MaxPromptChars))
		Expect(c.Commits).To(HaveLen(6))
	})

	It("caps batched posts at ten commits and digests at fifty", func() {
		var units []activity.Unit
		for i := range 60 {
			units = append(units, unit(fmt.Sprintf("c%d", i)))
		}

		post, err := synth.BuildContext(synth.Request{Type: activity.ContentPost, Units: units})
		Expect(err).NotTo(HaveOccurred())
		Expect(post.Commits).To(HaveLen(synth.MaxBatchedCommits))
		Expect(post.CommitCount).To(Equal(60))

		article, err := synth.BuildContext(synth.Request{Type: activity.ContentArticle, Units: units})
		Expect(err).NotTo(HaveOccurred())
		Expect(article.Commits).To(HaveLen(synth.MaxDigestCommits))
	})

	It("keeps at most three recall snippets", func() {
		c, err := synth.BuildContext(synth.Request{
			Type:   activity.ContentPost,
			Units:  []activity.Unit{unit("a")},
			Recall: []string{"one", "two", "three", "four"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Recall).To(Equal([]string{"one", "two", "three"}))
		Expect(c.Render("{related}")).To(Equal("- one\n- two\n- three"))
	})

	It("rejects unknown content types", func() {
		_, err := synth.BuildContext(synth.Request{Type: "newsletter", Units: []activity.Unit{unit("a")}})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Context.Render", func() {
	It("fills every placeholder", func() {
		c := synth.Context{
			Period:      "2024-W18",
			Repo:        "presence",
			Commits:     []synth.CommitLine{{Repo: "presence", Message: "fix window"}},
			CommitCount: 1,
			Prompts:     []string{"why is the window off by one"},
		}
		out := c.Render("{repo_name}|{commit_message}|{commit_count}|{prompt}|{commits}|{period}|{unknown}")
		Expect(out).To(Equal("presence|fix window|1|why is the window off by one|- [presence] fix window|2024-W18|{unknown}"))
	})
})

var _ = Describe("LLMGenerator", func() {
	It("renders the template and sizes the reply by content type", func() {
		var got llm.Request
		gen := synth.NewLLMGenerator(func(_ context.Context, req llm.Request) (string, error) {
			got = req
			return "ok", nil
		})

		out, err := gen.Generate(context.Background(), "about {repo_name}", synth.Context{Type: activity.ContentArticle, Repo: "presence"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(got.Prompt).To(Equal("about presence"))
		Expect(got.MaxTokens).To(Equal(4000))
	})
})

var _ = Describe("SeedTemplate", func() {
	It("has a seed for every content type", func() {
		for _, ct := range activity.ContentTypes {
			Expect(synth.SeedTemplate(ct)).NotTo(BeEmpty(), string(ct))
		}
		Expect(synth.SeedTemplate(activity.ContentThread)).To(ContainSubstring("TWEET n:"))
	})
})

var _ = Describe("SplitThread", func() {
	It("splits on markers and drops empty tweets", func() {
		body := "Here is the thread\nTWEET 1: First one\ncontinues\nTWEET 2:\nTWEET 3: Third"
		Expect(synth.SplitThread(body)).To(Equal([]string{"First one\ncontinues", "Third"}))
	})

	It("accepts markers on their own line", func() {
		Expect(synth.SplitThread("TWEET 1:\nalpha\n\nTWEET 2:\nbeta\n")).To(Equal([]string{"alpha", "beta"}))
	})

	It("treats an unmarked body as one tweet", func() {
		Expect(synth.SplitThread("  just one  ")).To(Equal([]string{"just one"}))
		Expect(synth.SplitThread("  ")).To(BeEmpty())
	})
})
