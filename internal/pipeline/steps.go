package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// StepStore durably memoizes completed steps so a re-invoked job resumes
// instead of repeating externally visible work.
type StepStore interface {
	Get(ctx context.Context, jobID, step string) ([]byte, bool, error)
	Put(ctx context.Context, jobID, step string, result []byte) error
}

// MemoryStepStore keeps step results for the life of the process.
type MemoryStepStore struct {
	mu    sync.RWMutex
	steps map[string][]byte
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string][]byte)}
}

func (m *MemoryStepStore) Get(_ context.Context, jobID, step string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.steps[jobID+"/"+step]
	return v, ok, nil
}

func (m *MemoryStepStore) Put(_ context.Context, jobID, step string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[jobID+"/"+step] = append([]byte(nil), result...)
	return nil
}

// Clear drops every memoized step of a job.
func (m *MemoryStepStore) Clear(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := jobID + "/"
	for k := range m.steps {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.steps, k)
		}
	}
	return nil
}

// Memo keys. These are distinct from the progress step names.
const (
	memoExtract = "extract"
	memoAnalyze = "analyze"
	memoChunk   = "chunk"
	memoEmbed   = "embed"
	memoStore   = "store"
	memoFinish  = "finish"
)

// loadStep returns a cached step result. Read or decode failures count as a miss.
func loadStep[T any](ctx context.Context, store StepStore, jobID, step string) (T, bool) {
	var v T
	raw, ok, err := store.Get(ctx, jobID, step)
	if err != nil {
		slog.WarnContext(ctx, "step store read failed, executing step", "job_id", jobID, "step", step, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.WarnContext(ctx, "cached step unreadable, executing step", "job_id", jobID, "step", step, "error", err)
		return v, false
	}
	slog.DebugContext(ctx, "step replayed from cache", "job_id", jobID, "step", step)
	return v, true
}

func saveStep[T any](ctx context.Context, store StepStore, jobID, step string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode step result", "job_id", jobID, "step", step, "error", err)
		return
	}
	if err := store.Put(ctx, jobID, step, raw); err != nil {
		slog.WarnContext(ctx, "failed to record step result", "job_id", jobID, "step", step, "error", err)
	}
}
