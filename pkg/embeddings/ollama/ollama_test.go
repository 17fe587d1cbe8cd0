package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/embeddings"
	"github.com/papercomputeco/presence/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server  *httptest.Server
		gotBody map[string]string
		gotUA   string
		calls   int
		status  int
		reply   string
	)

	BeforeEach(func() {
		gotBody, gotUA, calls = nil, "", 0
		status = http.StatusOK
		reply = `{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3]]}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			Expect(r.URL.Path).To(Equal("/api/embed"))
			gotUA = r.Header.Get("User-Agent")
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		DeferCleanup(server.Close)
	})

	newEmbedder := func(cfg ollama.EmbedderConfig) *ollama.Embedder {
		if cfg.BaseURL == "" {
			cfg.BaseURL = server.URL
		}
		e, err := ollama.NewEmbedder(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	It("posts the model and input and returns the first embedding", func() {
		e := newEmbedder(ollama.EmbedderConfig{BaseURL: server.URL + "/", Model: "nomic-embed-text"})

		vec, err := e.Embed(context.Background(), "  shipped the quality gate\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.1, 0.2, 0.3}))
		Expect(gotBody).To(HaveKeyWithValue("model", "nomic-embed-text"))
		Expect(gotBody).To(HaveKeyWithValue("input", "shipped the quality gate"))
		Expect(gotUA).To(HavePrefix("presence/"))
	})

	It("defaults the model", func() {
		_, err := newEmbedder(ollama.EmbedderConfig{}).Embed(context.Background(), "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotBody).To(HaveKeyWithValue("model", ollama.DefaultEmbeddingModel))
	})

	It("clips long input", func() {
		_, err := newEmbedder(ollama.EmbedderConfig{MaxInputChars: 10}).
			Embed(context.Background(), strings.Repeat("a", 50))
		Expect(err).NotTo(HaveOccurred())
		Expect(len([]rune(gotBody["input"]))).To(BeNumerically("<=", 10))
	})

	It("does not call ollama for blank input", func() {
		_, err := newEmbedder(ollama.EmbedderConfig{}).Embed(context.Background(), " \n")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(calls).To(BeZero())
	})

	It("rejects vectors that do not fit the store", func() {
		_, err := newEmbedder(ollama.EmbedderConfig{Dimensions: 768}).Embed(context.Background(), "x")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("returned 3 dimensions, store expects 768"))
	})

	It("wraps non-200 responses in ErrEmbedding", func() {
		status = http.StatusInternalServerError
		reply = "model not loaded"

		_, err := newEmbedder(ollama.EmbedderConfig{}).Embed(context.Background(), "x")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("model not loaded"))
	})

	It("fails when no embeddings come back", func() {
		reply = `{"embeddings":[]}`
		_, err := newEmbedder(ollama.EmbedderConfig{}).Embed(context.Background(), "x")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
