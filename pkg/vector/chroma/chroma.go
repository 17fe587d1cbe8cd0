// Package chroma provides a vector driver backed by a Chroma server over its
// v2 REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/utils"
	"github.com/papercomputeco/presence/pkg/vector"
)

const (
	// DefaultCollection holds presence recall documents.
	DefaultCollection = "presence_recall"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL, e.g. "http://localhost:8000".
	URL string

	// Collection defaults to DefaultCollection.
	Collection string

	// MaxRetries bounds the attempts to reach the server on startup.
	MaxRetries int

	// RetryDelay is the first backoff; it doubles up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	HTTPClient *http.Client
}

// Driver implements vector.Driver on a Chroma collection using cosine
// distance. Documents are keyed by their draft key, so re-adding a draft
// replaces it.
type Driver struct {
	baseURL      string
	collection   string
	collectionID string
	client       *http.Client
	logger       *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver connects to Chroma, retrying while the server starts, and gets
// or creates the collection.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	d := &Driver{
		baseURL:    strings.TrimRight(c.URL, "/"),
		collection: c.Collection,
		client:     client,
		logger:     log,
	}

	ctx := context.Background()
	delay := c.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		id, err := d.getOrCreateCollection(ctx)
		if err == nil {
			d.collectionID = id
			log.Info("connected to chroma", "url", d.baseURL, "collection", d.collection, "collection_id", id)
			return d, nil
		}
		lastErr = err
		if attempt == c.MaxRetries {
			break
		}
		log.Debug("chroma not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
		time.Sleep(delay)
		delay = min(delay*2, c.MaxRetryDelay)
	}
	return nil, fmt.Errorf("%w: collection %s after %d attempts: %w", vector.ErrConnection, d.collection, c.MaxRetries, lastErr)
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var col collection
	err := d.do(ctx, collectionsPath, createCollectionRequest{
		Name:        d.collection,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}, &col)
	if err != nil {
		return "", err
	}
	if col.ID == "" {
		return "", errors.New("chroma returned a collection without an id")
	}
	return col.ID, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := upsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = map[string]any{"draft_id": doc.DraftID, "content_type": doc.Type}
		req.Documents[i] = doc.Text
	}

	if err := d.do(ctx, d.collectionPath("upsert"), req, nil); err != nil {
		return fmt.Errorf("upserting documents: %w", err)
	}
	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	var resp queryResponse
	err := d.do(ctx, d.collectionPath("query"), queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "documents", "distances"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	results := make([]vector.QueryResult, 0, len(ids))
	for i, id := range ids {
		r := vector.QueryResult{Document: vector.Document{ID: id}}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			applyMetadata(&r.Document, resp.Metadatas[0][i])
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Text = resp.Documents[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = 1 - resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp getResponse
	err := d.do(ctx, d.collectionPath("get"), getRequest{
		IDs:     ids,
		Include: []string{"metadatas", "documents", "embeddings"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, len(resp.IDs))
	for i, id := range resp.IDs {
		docs[i].ID = id
		if i < len(resp.Metadatas) {
			applyMetadata(&docs[i], resp.Metadatas[i])
		}
		if i < len(resp.Documents) {
			docs[i].Text = resp.Documents[i]
		}
		if i < len(resp.Embeddings) {
			docs[i].Embedding = resp.Embeddings[i]
		}
	}
	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.do(ctx, d.collectionPath("delete"), deleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-driver resources.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// do POSTs body as JSON and decodes a 2xx reply into out when out is non-nil.
func (d *Driver) do(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chroma status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// applyMetadata copies draft fields out of a Chroma metadata map. JSON
// numbers decode as float64.
func applyMetadata(doc *vector.Document, md map[string]any) {
	if md == nil {
		return
	}
	if id, ok := md["draft_id"].(float64); ok {
		doc.DraftID = int64(id)
	}
	if t, ok := md["content_type"].(string); ok {
		doc.Type = t
	}
}
