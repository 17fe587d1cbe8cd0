package mcp

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

type stubRecall struct {
	posts []string
	err   error
}

func (s stubRecall) Recall(context.Context, string, ...string) ([]string, error) {
	return s.posts, s.err
}

func textOf(res *mcp.CallToolResult) string {
	Expect(res.Content).To(HaveLen(1))
	tc, ok := res.Content[0].(*mcp.TextContent)
	Expect(ok).To(BeTrue())
	return tc.Text
}

var _ = Describe("MCP Server", func() {
	var (
		ctx    context.Context
		store  *inmemory.Driver
		server *Server
	)

	save := func(d activity.ContentDraft) int64 {
		id, stored, err := store.SaveUnit(ctx, storage.UnitRecord{Draft: d})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeTrue())
		return id
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()

		var err error
		server, err = NewServer(Config{Store: store, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when storage driver is nil", func() {
			_, err := NewServer(Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("storage driver is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := NewServer(Config{Store: store})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("builds an empty server when disabled", func() {
			s, err := NewServer(Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("pending_drafts", func() {
		It("lists only approved unpublished drafts", func() {
			pending := save(testutils.Scored(testutils.NewTestDraft("aaa"), 0.9, true))
			save(testutils.Scored(testutils.NewTestDraft("bbb"), 0.5, false))

			res, out, err := server.handlePendingDrafts(ctx, nil, PendingDraftsInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(1))
			Expect(out.Drafts[0].ID).To(Equal(pending))
			Expect(out.Drafts[0].State).To(Equal("pending"))
			Expect(textOf(res)).To(ContainSubstring(`"count":1`))
		})

		It("filters by content type", func() {
			save(testutils.Scored(testutils.NewTestDraft("aaa"), 0.9, true))

			_, out, err := server.handlePendingDrafts(ctx, nil, PendingDraftsInput{Type: "thread"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Count).To(BeZero())
			Expect(out.Drafts).NotTo(BeNil())
		})

		It("reports an unknown content type as a tool error", func() {
			res, _, err := server.handlePendingDrafts(ctx, nil, PendingDraftsInput{Type: "podcast"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("get_draft", func() {
		It("returns the draft with its gate outcome", func() {
			id := save(testutils.Scored(testutils.NewTestDraft("aaa"), 0.9, true))

			res, out, err := server.handleGetDraft(ctx, nil, GetDraftInput{ID: id})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Key).To(Equal("post:aaa"))
			Expect(out.Score).To(BeNumerically("~", 0.9, 1e-9))
		})

		It("reports a missing draft as a tool error", func() {
			res, _, err := server.handleGetDraft(ctx, nil, GetDraftInput{ID: 99})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("99"))
		})
	})

	Describe("related_posts", func() {
		It("returns recalled posts", func() {
			s, err := NewServer(Config{Store: store, Recall: stubRecall{posts: []string{"older"}}, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			_, out, err := s.handleRelatedPosts(ctx, nil, RelatedPostsInput{Query: "cache"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Posts).To(Equal([]string{"older"}))
		})

		It("reports a recall failure as a tool error", func() {
			s, err := NewServer(Config{Store: store, Recall: stubRecall{err: errors.New("down")}, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			res, _, err := s.handleRelatedPosts(ctx, nil, RelatedPostsInput{Query: "cache"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})
})
