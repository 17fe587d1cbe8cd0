// Package vector stores embeddings of published drafts so that later
// generation can recall related earlier work.
package vector

import "context"

// Document is one indexed draft with its embedding and the snippet shown
// to the generator on recall.
type Document struct {
	// ID is the draft's natural key.
	ID string

	// DraftID is the store id of the draft.
	DraftID int64

	// Type is the draft content type.
	Type string

	// Text is the recall snippet.
	Text string

	// Embedding is the vector representation of Text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings. A document with an
	// existing ID replaces the stored one.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs, skipping unknown ones.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
