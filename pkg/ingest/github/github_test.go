package github_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/ingest/github"
)

const commitsJSON = `[{
  "sha": "abc123",
  "html_url": "https://github.com/dev/presence/commit/abc123",
  "commit": {
    "message": "feat: gate drafts\n\nbody",
    "author": {"name": "Dev", "date": "2026-03-14T12:00:00Z"}
  }
}]`

var _ = Describe("Client", func() {
	var (
		server    *httptest.Server
		routes    map[string]func(w http.ResponseWriter, r *http.Request)
		sinceSeen string
		authSeen  string
	)

	BeforeEach(func() {
		sinceSeen = ""
		routes = map[string]func(w http.ResponseWriter, r *http.Request){
			"/user/repos": func(w http.ResponseWriter, r *http.Request) {
				authSeen = r.Header.Get("Authorization")
				Expect(r.URL.Query().Get("affiliation")).To(Equal("owner"))
				_, _ = w.Write([]byte(`[
				  {"name":"presence","full_name":"dev/presence","fork":false},
				  {"name":"forked","full_name":"dev/forked","fork":true},
				  {"name":"empty","full_name":"dev/empty","fork":false},
				  {"name":"secret","full_name":"dev/secret","fork":false}
				]`))
			},
			"/repos/dev/presence/commits": func(w http.ResponseWriter, r *http.Request) {
				sinceSeen = r.URL.Query().Get("since")
				Expect(r.URL.Query().Get("author")).To(Equal("dev"))
				_, _ = w.Write([]byte(commitsJSON))
			},
			"/repos/dev/forked/commits": func(http.ResponseWriter, *http.Request) {
				Fail("forks should be skipped")
			},
			"/repos/dev/empty/commits": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusConflict)
			},
			"/repos/dev/secret/commits": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h, ok := routes[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *github.Client {
		c, err := github.New(github.Config{
			APIURL:     server.URL,
			Username:   "dev",
			Token:      "ghp_test",
			HTTPClient: server.Client(),
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("lists commits from owned repositories", func() {
		since := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
		commits, err := newClient().ListCommits(context.Background(), since)
		Expect(err).NotTo(HaveOccurred())
		Expect(commits).To(HaveLen(1))

		c := commits[0]
		Expect(c.SHA).To(Equal("abc123"))
		Expect(c.Repo).To(Equal("presence"))
		Expect(c.Subject()).To(Equal("feat: gate drafts"))
		Expect(c.Author).To(Equal("Dev"))
		Expect(c.URL).To(Equal("https://github.com/dev/presence/commit/abc123"))
		Expect(c.Timestamp.Equal(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))).To(BeTrue())

		Expect(sinceSeen).To(Equal("2026-03-14T10:30:00Z"))
		Expect(authSeen).To(Equal("Bearer ghp_test"))
	})

	It("fails on server errors", func() {
		routes["/repos/dev/presence/commits"] = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}
		_, err := newClient().ListCommits(context.Background(), time.Time{})
		var se *github.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusBadGateway))
	})

	It("fails when repositories cannot be listed", func() {
		routes["/user/repos"] = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}
		_, err := newClient().ListCommits(context.Background(), time.Time{})
		Expect(err).To(MatchError(ContainSubstring("status 401")))
	})

	It("requires a username and token", func() {
		_, err := github.New(github.Config{Token: "t"})
		Expect(err).To(HaveOccurred())
		_, err = github.New(github.Config{Username: "dev"})
		Expect(err).To(HaveOccurred())
	})
})
