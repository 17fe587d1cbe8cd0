package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/credentials"
	"github.com/papercomputeco/presence/pkg/llm"
)

var _ = Describe("NewCaller", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	It("refuses a hosted provider without a key", func() {
		_, err := llm.NewCaller(llm.CallerConfig{Provider: "openai"})
		Expect(err).To(MatchError(ContainSubstring("no API key found for openai")))
	})

	It("returns an error for unsupported provider", func() {
		_, err := llm.NewCaller(llm.CallerConfig{Provider: "unsupported", APIKey: "key"})
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})

	It("creates an ollama caller without a key", func() {
		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "ollama"})
		Expect(err).NotTo(HaveOccurred())
		Expect(caller).NotTo(BeNil())
	})

	It("resolves keys from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
		Expect(llm.HasCredentials(llm.CallerConfig{Provider: "anthropic"})).To(BeTrue())
		Expect(llm.HasCredentials(llm.CallerConfig{Provider: "openai"})).To(BeFalse())
	})

	It("resolves keys from stored credentials", func() {
		mgr, err := credentials.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("openai", "stored-key")).To(Succeed())

		Expect(llm.HasCredentials(llm.CallerConfig{Provider: "openai", CredMgr: mgr})).To(BeTrue())
	})
})

var _ = Describe("OpenAI caller", func() {
	It("sends system and user messages and returns the reply", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal("gpt-4o-mini"))
			Expect(req["max_tokens"]).To(BeNumerically("==", 500))
			Expect(req["response_format"]).To(HaveKeyWithValue("type", "json_object"))
			Expect(req["messages"]).To(HaveLen(2))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[{"message":{"content":"  {\"clarity\":7}  "}}]}`))
		}))
		defer server.Close()

		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", APIKey: "test-key", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), llm.Request{System: "judge", Prompt: "score", MaxTokens: 500, JSON: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"clarity":7}`))
	})

	It("returns a StatusError on non-200 status", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer server.Close()

		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = caller(context.Background(), llm.Request{Prompt: "p"})
		var se *llm.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusTooManyRequests))
		Expect(se.Retryable()).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("status 429"))
	})

	It("treats an empty reply as an error", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
		}))
		defer server.Close()

		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = caller(context.Background(), llm.Request{Prompt: "p"})
		Expect(err).To(MatchError(llm.ErrEmptyReply))
	})

	It("times out slow calls", func() {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		caller, err := llm.NewCaller(llm.CallerConfig{
			Provider: "openai",
			APIKey:   "k",
			BaseURL:  server.URL,
			Timeout:  50 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = caller(context.Background(), llm.Request{Prompt: "p"})
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})

var _ = Describe("Anthropic caller", func() {
	It("sends the system prompt separately and joins text blocks", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(r.Header.Get("x-api-key")).To(Equal("test-key"))
			Expect(r.Header.Get("anthropic-version")).To(Equal("2023-06-01"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["system"]).To(Equal("voice"))
			Expect(req["max_tokens"]).To(BeNumerically("==", 1024))

			w.Write([]byte(`{"content":[{"type":"text","text":"TWEET 1: "},{"type":"text","text":"hello"}]}`))
		}))
		defer server.Close()

		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "anthropic", APIKey: "test-key", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), llm.Request{System: "voice", Prompt: "write"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("TWEET 1: hello"))
	})
})

var _ = Describe("Ollama caller", func() {
	It("calls the chat endpoint without streaming", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["stream"]).To(BeFalse())
			Expect(req["format"]).To(Equal("json"))
			Expect(req["options"]).To(HaveKeyWithValue("num_predict", BeNumerically("==", 200)))

			w.Write([]byte(`{"message":{"content":"{\"ok\":true}"},"done":true}`))
		}))
		defer server.Close()

		caller, err := llm.NewCaller(llm.CallerConfig{Provider: "ollama", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), llm.Request{Prompt: "p", JSON: true, MaxTokens: 200})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"ok":true}`))
	})
})
