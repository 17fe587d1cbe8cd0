package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// MockEmbedder returns the vector registered for a text in Embeddings, or a
// small vector derived from the text so that distinct drafts embed
// differently. Every embedded text is recorded.
type MockEmbedder struct {
	mu sync.Mutex

	Embeddings map[string][]float32

	// FailOn makes Embed fail for exactly this text.
	FailOn string

	texts []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Embeddings: make(map[string][]float32)}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.texts = append(m.texts, text)
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}
	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{
		float32(sum&0xff) / 255,
		float32(sum>>8&0xff) / 255,
		float32(sum>>16&0xff) / 255,
	}, nil
}

// Embedded returns the texts embedded so far, in call order.
func (m *MockEmbedder) Embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *MockEmbedder) Close() error {
	return nil
}
