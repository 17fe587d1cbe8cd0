package x_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/credentials"
	"github.com/papercomputeco/presence/pkg/publish"
	"github.com/papercomputeco/presence/pkg/social/x"
	"github.com/papercomputeco/presence/pkg/utils"
)

type received struct {
	Auth  string
	Agent string
	Body  map[string]any
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		mu       sync.Mutex
		requests []received
		statuses []int
	)

	BeforeEach(func() {
		requests = nil
		statuses = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/2/tweets"))
			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())

			mu.Lock()
			requests = append(requests, received{Auth: r.Header.Get("Authorization"), Agent: r.Header.Get("User-Agent"), Body: body})
			n := len(requests)
			status := http.StatusCreated
			if len(statuses) > 0 {
				status = statuses[0]
				statuses = statuses[1:]
			}
			mu.Unlock()

			w.WriteHeader(status)
			if status == http.StatusCreated {
				fmt.Fprintf(w, `{"data":{"id":"%d","text":"ok"}}`, 100+n)
				return
			}
			_, _ = w.Write([]byte(`{"title":"Too Many Requests"}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *x.Client {
		c, err := x.New(x.Config{
			APIURL:     server.URL,
			Username:   "dev",
			Credential: credentials.ProviderCredential{APIKey: "token-1"},
			HTTPClient: server.Client(),
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("requires a username and a token", func() {
		_, err := x.New(x.Config{Credential: credentials.ProviderCredential{APIKey: "t"}})
		Expect(err).To(HaveOccurred())
		_, err = x.New(x.Config{Username: "dev"})
		Expect(err).To(HaveOccurred())
	})

	It("posts with a bearer token and returns the status URL", func() {
		url, err := newClient().Post(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("https://x.com/dev/status/101"))
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Auth).To(Equal("Bearer token-1"))
		Expect(requests[0].Agent).To(Equal(utils.UserAgent()))
		Expect(requests[0].Body).To(HaveKeyWithValue("text", "hello"))
		Expect(requests[0].Body).NotTo(HaveKey("reply"))
	})

	It("chains thread posts as replies", func() {
		url, err := newClient().PostThread(context.Background(), []string{"one", "two", "three"})
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("https://x.com/dev/status/101"))
		Expect(requests).To(HaveLen(3))
		Expect(requests[1].Body["reply"]).To(HaveKeyWithValue("in_reply_to_tweet_id", "101"))
		Expect(requests[2].Body["reply"]).To(HaveKeyWithValue("in_reply_to_tweet_id", "102"))
	})

	It("maps 429 to ErrRateLimited", func() {
		statuses = []int{http.StatusTooManyRequests}
		_, err := newClient().Post(context.Background(), "hello")
		Expect(err).To(MatchError(publish.ErrRateLimited))
	})

	It("reports other failures with the status", func() {
		statuses = []int{http.StatusForbidden}
		_, err := newClient().Post(context.Background(), "hello")
		Expect(err).To(MatchError(ContainSubstring("status 403")))
		Expect(err).NotTo(MatchError(publish.ErrRateLimited))
	})

	It("stops a thread at the first failure", func() {
		statuses = []int{http.StatusCreated, http.StatusInternalServerError}
		_, err := newClient().PostThread(context.Background(), []string{"one", "two", "three"})
		Expect(err).To(MatchError(ContainSubstring("thread post 2 of 3")))
		Expect(requests).To(HaveLen(2))
	})

	It("builds public URLs", func() {
		Expect(newClient().URL("42")).To(Equal("https://x.com/dev/status/42"))
	})
})

var _ = Describe("token renewal", func() {
	type renewal struct {
		access, refresh string
		expiry          time.Time
	}

	var (
		server     *httptest.Server
		mu         sync.Mutex
		grants     []string
		bearers    []string
		renewals   []renewal
		credential credentials.ProviderCredential
	)

	BeforeEach(func() {
		grants, bearers, renewals = nil, nil, nil
		credential = credentials.ProviderCredential{
			APIKey:       "stale",
			RefreshToken: "refresh-1",
			ClientID:     "client",
			ClientSecret: "secret",
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			switch r.URL.Path {
			case "/2/oauth2/token":
				id, secret, ok := r.BasicAuth()
				Expect(ok).To(BeTrue())
				Expect(id).To(Equal("client"))
				Expect(secret).To(Equal("secret"))
				Expect(r.ParseForm()).To(Succeed())
				grants = append(grants, r.Form.Get("refresh_token"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"refresh-2","token_type":"bearer","expires_in":7200}`))
			case "/2/tweets":
				bearers = append(bearers, r.Header.Get("Authorization"))
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"data":{"id":"7","text":"ok"}}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *x.Client {
		c, err := x.New(x.Config{
			APIURL:     server.URL,
			Username:   "dev",
			Credential: credential,
			HTTPClient: server.Client(),
			OnRefresh: func(access, refresh string, expiry time.Time) error {
				renewals = append(renewals, renewal{access, refresh, expiry})
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("renews a token with no recorded expiry and reports it once", func() {
		c := newClient()
		_, err := c.Post(context.Background(), "one")
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Post(context.Background(), "two")
		Expect(err).NotTo(HaveOccurred())

		Expect(grants).To(Equal([]string{"refresh-1"}))
		Expect(bearers).To(Equal([]string{"Bearer fresh", "Bearer fresh"}))
		Expect(renewals).To(HaveLen(1))
		Expect(renewals[0].access).To(Equal("fresh"))
		Expect(renewals[0].refresh).To(Equal("refresh-2"))
		Expect(renewals[0].expiry).To(BeTemporally(">", time.Now().Add(time.Hour)))
	})

	It("uses a stored token until its recorded expiry", func() {
		later := time.Now().Add(time.Hour)
		credential.ExpiresAt = &later

		_, err := newClient().Post(context.Background(), "one")
		Expect(err).NotTo(HaveOccurred())

		Expect(grants).To(BeEmpty())
		Expect(bearers).To(Equal([]string{"Bearer stale"}))
		Expect(renewals).To(BeEmpty())
	})
})
