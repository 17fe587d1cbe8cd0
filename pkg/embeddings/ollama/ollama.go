// Package ollama embeds draft text with a local Ollama server's /api/embed
// endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/embeddings"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/utils"
)

const (
	DefaultEmbeddingModel = "embeddinggemma"
	DefaultBaseURL        = "http://localhost:11434"

	// DefaultMaxInputChars keeps weekly articles inside the context of small
	// embedding models. Recall only needs the opening of a piece.
	DefaultMaxInputChars = 8000

	defaultTimeout = 60 * time.Second
)

// EmbedderConfig configures the Ollama embedder. Zero values take the
// package defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string

	// Dimensions, when set, is the vector size the knowledge store was
	// created with. Responses of any other size are rejected.
	Dimensions uint

	MaxInputChars int
	Timeout       time.Duration
}

// Embedder calls Ollama for one embedding per text.
type Embedder struct {
	baseURL  string
	model    string
	dims     int
	maxInput int
	client   *http.Client
	logger   *slog.Logger
}

var _ embeddings.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func NewEmbedder(cfg EmbedderConfig, log *slog.Logger) (*Embedder, error) {
	if log == nil {
		log = logger.Nop()
	}
	e := &Embedder{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		dims:     int(cfg.Dimensions),
		maxInput: cfg.MaxInputChars,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log,
	}
	if e.baseURL == "" {
		e.baseURL = DefaultBaseURL
	}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.maxInput <= 0 {
		e.maxInput = DefaultMaxInputChars
	}
	if e.client.Timeout <= 0 {
		e.client.Timeout = defaultTimeout
	}
	return e, nil
}

// Embed returns the embedding of text, clipped to the configured input size.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", embeddings.ErrEmbedding)
	}
	payload, err := json.Marshal(embedRequest{Model: e.model, Input: utils.Clip(text, e.maxInput)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embeddings.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama at %s: %w", embeddings.ErrEmbedding, e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama status %d: %s",
			embeddings.ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %w", embeddings.ErrEmbedding, err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embedding for model %s", embeddings.ErrEmbedding, e.model)
	}

	vec := out.Embeddings[0]
	if e.dims > 0 && len(vec) != e.dims {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, store expects %d",
			embeddings.ErrEmbedding, e.model, len(vec), e.dims)
	}
	return vec, nil
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (e *Embedder) Close() error {
	return nil
}
