package app

import (
	"context"
	"sync"

	"docvault/internal/pipeline"
	"docvault/internal/text"
	"docvault/internal/vector"
)

// MockVectorStore is an in-memory VectorStore for tests.
type MockVectorStore struct {
	EnsureSchemaErr error
	SearchErr       error
	Hits            []vector.Hit
	Chunks          int

	mu       sync.Mutex
	Upserted []pipeline.VectorRecord
	Deleted  []string
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error { return m.EnsureSchemaErr }

func (m *MockVectorStore) Upsert(ctx context.Context, records []pipeline.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserted = append(m.Upserted, records...)
	return nil
}

func (m *MockVectorStore) Search(ctx context.Context, ownerUserID string, vec []float32, limit int) ([]vector.Hit, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	var out []vector.Hit
	for _, h := range m.Hits {
		if h.Metadata.OwnerUserID == ownerUserID && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MockVectorStore) CountChunks(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Chunks + len(m.Upserted), nil
}

func (m *MockVectorStore) DeleteByFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, fileID)
	return nil
}

// StubAI returns fixed analysis and a constant vector for every input.
type StubAI struct {
	Vector []float32
	Tags   []string
}

func (s StubAI) Analyze(ctx context.Context, body string, existingTags []string) (pipeline.Analysis, error) {
	return pipeline.Analysis{Summary: "stub summary", Tags: s.Tags}, nil
}

func (s StubAI) Enrich(ctx context.Context, passage string) (text.Enrichment, error) {
	return text.Enrichment{Summary: "stub"}, nil
}

func (s StubAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.Vector
	}
	return out, nil
}

func (s StubAI) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.Vector, nil
}

// RecordingPublisher captures broker publishes.
type RecordingPublisher struct {
	mu       sync.Mutex
	Messages map[string][][]byte
}

func (p *RecordingPublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Messages == nil {
		p.Messages = make(map[string][][]byte)
	}
	p.Messages[topic] = append(p.Messages[topic], body)
	return nil
}
