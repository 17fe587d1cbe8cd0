// Package embeddingutils builds the configured embeddings.Embedder.
package embeddingutils

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/embeddings"
	"github.com/papercomputeco/presence/pkg/embeddings/ollama"
)

// ErrUnsupportedProvider is returned for an embedding provider presence
// cannot talk to.
var ErrUnsupportedProvider = errors.New("unsupported embedding provider")

// NewEmbedder returns the embedder named by cfg.Provider. The provider name
// is matched case-insensitively; an empty name selects ollama.
func NewEmbedder(cfg config.EmbeddingConfig, log *slog.Logger) (embeddings.Embedder, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case "", "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    cfg.Target,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
