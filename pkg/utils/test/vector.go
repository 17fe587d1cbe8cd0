package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/presence/pkg/vector"
)

// MockVectorDriver is an in-memory vector driver. Query returns Results when
// set, otherwise every stored document in insertion order.
type MockVectorDriver struct {
	mu      sync.Mutex
	order   []string
	docs    map[string]vector.Document
	Results []vector.QueryResult
	Queries int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{docs: make(map[string]vector.Document)}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if _, ok := m.docs[d.ID]; !ok {
			m.order = append(m.order, d.ID)
		}
		m.docs[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries++

	results := m.Results
	if results == nil {
		for _, id := range m.order {
			results = append(results, vector.QueryResult{Document: m.docs[id], Score: 1})
		}
	}
	if topK > 0 && len(results) > topK {
		return results[:topK], nil
	}
	return results, nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vector.Document
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Len reports the number of stored documents.
func (m *MockVectorDriver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.docs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
