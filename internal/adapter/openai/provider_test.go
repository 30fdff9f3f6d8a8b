package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/pipeline"
)

func fakeOpenAI(t *testing.T, chatReply string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(i), 1}}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "c1",
				"object": "chat.completion",
				"model":  "m",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": chatReply},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestProvider_EmbedDocuments(t *testing.T) {
	ts := fakeOpenAI(t, "")
	p, err := New(Config{BaseURL: ts.URL, ChatModel: "m", EmbeddingModel: "e"}, nil)
	require.NoError(t, err)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestProvider_Analyze(t *testing.T) {
	ts := fakeOpenAI(t, "```json\n{\"summary\":\"Policy schedule.\",\"tags\":[\"Insurance\"]}\n```")
	p, err := New(Config{BaseURL: ts.URL, ChatModel: "m", EmbeddingModel: "e"}, nil)
	require.NoError(t, err)

	a, err := p.Analyze(context.Background(), "policy text", nil)
	require.NoError(t, err)
	assert.Equal(t, "Policy schedule.", a.Summary)
	assert.Equal(t, []string{"insurance"}, a.Tags)
}

func TestProvider_AnalyzeRejectsEmptySummary(t *testing.T) {
	ts := fakeOpenAI(t, `{"summary":"","tags":["x"]}`)
	p, err := New(Config{BaseURL: ts.URL, ChatModel: "m", EmbeddingModel: "e"}, nil)
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), "text", nil)
	assert.ErrorIs(t, err, pipeline.ErrInvalidAnalysis)
}

func TestProvider_Enrich(t *testing.T) {
	ts := fakeOpenAI(t, `{"summary":"About rates.","questions":["What is the rate?"]}`)
	p, err := New(Config{BaseURL: ts.URL, ChatModel: "m", EmbeddingModel: "e"}, nil)
	require.NoError(t, err)

	e, err := p.Enrich(context.Background(), "rates are 5%")
	require.NoError(t, err)
	assert.Equal(t, "About rates.", e.Summary)
	assert.Equal(t, []string{"What is the rate?"}, e.Questions)
}
