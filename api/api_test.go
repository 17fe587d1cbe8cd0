package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/api/mcp"
	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/agenttrace"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/presence/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		store  *inmemory.Driver
		server *Server
	)

	get := func(path string, out any) int {
		resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		if out != nil {
			Expect(json.Unmarshal(body, out)).To(Succeed())
		}
		return resp.StatusCode
	}

	save := func(d activity.ContentDraft) int64 {
		id, _, err := store.SaveUnit(ctx, storage.UnitRecord{Draft: d})
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		server = NewServer(Config{ListenAddr: ":0"}, store, logger.Nop())
	})

	It("answers ping", func() {
		var body string
		Expect(get("/ping", &body)).To(Equal(http.StatusOK))
		Expect(body).To(Equal("pong"))
	})

	Describe("GET /drafts", func() {
		BeforeEach(func() {
			save(testutils.Scored(testutils.NewTestDraft("aaa"), 0.9, true))
			save(testutils.Scored(testutils.NewTestDraft("bbb"), 0.4, false))
			id := save(testutils.Scored(testutils.NewTestDraft("ccc"), 0.8, true))
			Expect(store.MarkPublished(ctx, id, "https://x.com/dev/status/1", testutils.Noon)).To(Succeed())
		})

		It("lists every draft by default", func() {
			var resp DraftsResponse
			Expect(get("/drafts", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Count).To(Equal(3))
		})

		DescribeTable("filters by state",
			func(state, key string) {
				var resp DraftsResponse
				Expect(get("/drafts?state="+state, &resp)).To(Equal(http.StatusOK))
				Expect(resp.Drafts).To(HaveLen(1))
				Expect(resp.Drafts[0].Key).To(Equal(key))
			},
			Entry("pending", "pending", "post:aaa"),
			Entry("suppressed", "suppressed", "post:bbb"),
			Entry("published", "published", "post:ccc"),
		)

		It("treats all as no filter", func() {
			var resp DraftsResponse
			Expect(get("/drafts?state=all", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Count).To(Equal(3))
		})

		It("rejects an unknown state", func() {
			var resp ErrorResponse
			Expect(get("/drafts?state=lost", &resp)).To(Equal(http.StatusBadRequest))
			Expect(resp.Error).To(ContainSubstring("lost"))
		})

		It("rejects an unknown type", func() {
			Expect(get("/drafts?type=podcast", nil)).To(Equal(http.StatusBadRequest))
		})

		It("applies a limit, keeping the newest drafts", func() {
			var resp DraftsResponse
			Expect(get("/drafts?limit=2", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Drafts[0].Key).To(Equal("post:ccc"))
			Expect(resp.Drafts[1].Key).To(Equal("post:bbb"))
		})

		It("clamps the limit to the configured maximum", func() {
			server = NewServer(Config{MaxDrafts: 1}, store, logger.Nop())
			var resp DraftsResponse
			Expect(get("/drafts?limit=50", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Count).To(Equal(1))
			Expect(resp.Drafts[0].Key).To(Equal("post:ccc"))
			Expect(get("/drafts", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Count).To(Equal(1))
		})

		It("returns an empty list rather than null", func() {
			server = NewServer(Config{}, inmemory.NewDriver(), nil)
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/drafts", nil))
			Expect(err).NotTo(HaveOccurred())
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring(`"drafts":[]`))
		})
	})

	Describe("GET /drafts/:id", func() {
		It("returns the draft", func() {
			id := save(testutils.Scored(testutils.NewTestDraft("aaa"), 0.9, true))
			var d activity.ContentDraft
			Expect(get("/drafts/"+itoa(id), &d)).To(Equal(http.StatusOK))
			Expect(d.Key).To(Equal("post:aaa"))
			Expect(d.Approved).To(BeTrue())
		})

		It("returns 404 for a missing draft", func() {
			Expect(get("/drafts/42", nil)).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a non-numeric id", func() {
			Expect(get("/drafts/abc", nil)).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /templates/:kind", func() {
		It("lists versions with the active one", func() {
			_, err := store.AddTemplate(ctx, activity.ContentPost.TemplateKind(), "v1")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AddTemplate(ctx, activity.ContentPost.TemplateKind(), "v2")
			Expect(err).NotTo(HaveOccurred())

			var resp TemplatesResponse
			Expect(get("/templates/post", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Kind).To(Equal(activity.TemplateKind("generate:post")))
			Expect(resp.Active).To(Equal(2))
			Expect(resp.Versions).To(HaveLen(2))
		})

		It("returns 404 for a kind with no versions", func() {
			Expect(get("/templates/rubric", nil)).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /commits/:sha/trace", func() {
		It("renders linked prompts as an agent trace", func() {
			Expect(store.RecordLinks(ctx, []activity.CorrelationLink{
				{CommitSHA: "abc", PromptUUID: "p1", Confidence: 0.8, Distance: time.Minute, Revision: 1, CreatedAt: testutils.Noon},
			})).To(Succeed())

			var trace agenttrace.AgentTrace
			Expect(get("/commits/abc/trace", &trace)).To(Equal(http.StatusOK))
			Expect(trace.ID).To(Equal("presence:abc"))
			Expect(trace.VCS.Revision).To(Equal("abc"))
			Expect(trace.Metadata["prompts"]).To(HaveLen(1))
		})

		It("returns 404 for a commit with no links", func() {
			Expect(get("/commits/nope/trace", nil)).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /mcp", func() {
		It("serves the MCP handler", func() {
			m, err := mcp.NewServer(mcp.Config{Store: store, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			server = NewServer(Config{}, store, logger.Nop(), WithMCP(m.Handler()))

			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(
				`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`,
			))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("presence"))
		})
	})
})

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
