// Package knowledge recalls earlier published drafts related to new work so
// that generation can refer back to them. Published drafts are indexed
// through a worker pool; recall embeds a query built from the units and
// searches the vector store.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/embeddings"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/utils"
	"github.com/papercomputeco/presence/pkg/vector"
	"github.com/papercomputeco/presence/pkg/worker"
)

const (
	// DefaultTopK is the number of snippets recalled per request.
	DefaultTopK = 3

	maxQueryChars = 2000
)

// Config configures a Base.
type Config struct {
	Embedder     embeddings.Embedder
	VectorDriver vector.Driver

	// TopK defaults to DefaultTopK.
	TopK uint

	// MinScore drops results scoring below it.
	MinScore float32

	// Async indexes through a worker pool instead of inline.
	Async bool

	Logger *slog.Logger
}

// Base indexes published drafts and recalls related ones.
type Base struct {
	embedder embeddings.Embedder
	vectors  vector.Driver
	pool     *worker.Pool
	topK     int
	minScore float32
	logger   *slog.Logger
}

// New builds a Base. It owns the embedder and vector driver and closes them
// on Close.
func New(c Config) (*Base, error) {
	if c.Embedder == nil || c.VectorDriver == nil {
		return nil, errors.New("knowledge requires an embedder and a vector driver")
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	topK := int(c.TopK)
	if topK <= 0 {
		topK = DefaultTopK
	}

	b := &Base{
		embedder: c.Embedder,
		vectors:  c.VectorDriver,
		topK:     topK,
		minScore: c.MinScore,
		logger:   log,
	}

	if c.Async {
		pool, err := worker.NewPool(&worker.Config{
			VectorDriver: c.VectorDriver,
			Embedder:     c.Embedder,
			Logger:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("starting index pool: %w", err)
		}
		b.pool = pool
	}
	return b, nil
}

// Index adds a published draft to the store. Unpublished drafts are ignored.
func (b *Base) Index(ctx context.Context, d activity.ContentDraft) error {
	if !d.Published() {
		return nil
	}
	if b.pool != nil {
		if !b.pool.Enqueue(worker.Job{Draft: d}) {
			return fmt.Errorf("index queue full, dropped %s", d.Key)
		}
		return nil
	}
	return worker.Index(ctx, b.embedder, b.vectors, d)
}

// Recall returns the bodies of earlier drafts most similar to query, best
// first. Drafts whose key is in exclude are skipped.
func (b *Base) Recall(ctx context.Context, query string, exclude ...string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	query = utils.Clip(query, maxQueryChars)

	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding recall query: %w", err)
	}

	results, err := b.vectors.Query(ctx, embedding, b.topK+len(exclude))
	if err != nil {
		return nil, fmt.Errorf("querying knowledge: %w", err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}

	var snippets []string
	for _, r := range results {
		if skip[r.ID] || r.Score < b.minScore || r.Text == "" {
			continue
		}
		snippets = append(snippets, r.Text)
		if len(snippets) == b.topK {
			break
		}
	}
	b.logger.Debug("recalled knowledge", "results", len(results), "snippets", len(snippets))
	return snippets, nil
}

// Close drains pending index jobs and releases the backends.
func (b *Base) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(b.vectors.Close(), b.embedder.Close())
}

// Query builds the recall query for a set of units from commit subjects and
// prompt text.
func Query(units []activity.Unit) string {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(u.Commit.Subject())
		sb.WriteByte('\n')
		for _, p := range u.Prompts {
			sb.WriteString(p.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
