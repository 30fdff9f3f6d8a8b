package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"

	"docvault/internal/adapter/llm"
	"docvault/internal/resilience"
)

// maxBatch is the per-request limit of batchEmbedContents.
const maxBatch = 100

type Embedder struct {
	client *genai.Client
	model  string
	guard  *resilience.Guard
}

func NewEmbedder(client *genai.Client, model string, guard *resilience.Guard) *Embedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &Embedder{client: client, model: model, guard: guard}
}

// EmbedDocuments returns one vector per input, in input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding documents", "model", e.model, "count", len(texts))
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		var res *genai.BatchEmbedContentsResponse
		err := e.guard.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = em.BatchEmbedContents(ctx, batch)
			return err
		})
		if err != nil {
			slog.ErrorContext(ctx, "embedding failed", "error", err, "batch_start", start)
			return nil, fmt.Errorf("gemini batch embed: %w", llm.MarkTransient(err))
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	var res *genai.EmbedContentResponse
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = em.EmbedContent(ctx, genai.Text(query))
		return err
	})
	if err != nil {
		return nil, llm.MarkTransient(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}
