package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"docvault/internal/middleware"
	"docvault/internal/vector"
)

const (
	DefaultTopK       = 10
	MaxTopK           = 100
	DefaultRerankTopN = 5
)

var ErrEmptyQuery = errors.New("query is required")
var ErrMissingOwner = errors.New("owner is required")

type SearchResult struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Score      float32  `json:"score"`
	FileID     string   `json:"fileId"`
	FileName   string   `json:"fileName"`
	Page       int      `json:"page"`
	ChunkIndex int      `json:"chunkIndex"`
	Title      string   `json:"title,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	URL        string   `json:"url,omitempty"`
}

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, ownerUserID string, vec []float32, limit int) ([]vector.Hit, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]int, error)
}

type Service struct {
	embedder   QueryEmbedder
	store      VectorStore
	reranker   Reranker
	rerankTopN int
	logger     *QueryLogger
}

func NewService(e QueryEmbedder, s VectorStore, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, logger: l}
}

// WithReranker reorders the vector candidates and keeps the best topN.
func (s *Service) WithReranker(r Reranker, topN int) *Service {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	s.reranker = r
	s.rerankTopN = topN
	return s
}

// Search embeds the query and returns the owner's nearest chunks, best first.
// limit <= 0 selects DefaultTopK. With a reranker the limit is the candidate
// pool and at most the rerank topN results come back.
func (s *Service) Search(ctx context.Context, ownerUserID, query string, limit int) (results []SearchResult, err error) {
	start := time.Now()
	reranked := false
	defer func() {
		if s.logger == nil || errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrMissingOwner) {
			return
		}
		entry := QueryLogEntry{
			OwnerUserID:   ownerUserID,
			Query:         query,
			Limit:         limit,
			Hits:          len(results),
			Reranked:      reranked,
			TookMs:        time.Since(start).Milliseconds(),
			CorrelationID: middleware.GetCorrelationID(ctx),
		}
		for _, r := range results {
			entry.FileIDs = appendUnique(entry.FileIDs, r.FileID)
		}
		if err != nil {
			entry.Error = err.Error()
		}
		s.logger.Log(entry)
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if ownerUserID == "" {
		return nil, ErrMissingOwner
	}
	if limit <= 0 {
		limit = DefaultTopK
	}
	if limit > MaxTopK {
		limit = MaxTopK
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.store.Search(ctx, ownerUserID, vec, limit)
	if err != nil {
		return nil, err
	}

	results = make([]SearchResult, len(hits))
	for i, h := range hits {
		m := h.Metadata
		url := m.DownloadURL
		if url == "" {
			url = m.BlobURL
		}
		results[i] = SearchResult{
			ID:         h.ID,
			Content:    m.Text,
			Score:      h.Score,
			FileID:     m.FileID,
			FileName:   m.FileName,
			Page:       m.Page,
			ChunkIndex: m.ChunkIndex,
			Title:      m.Title,
			Keywords:   m.Keywords,
			URL:        url,
		}
	}

	if s.reranker != nil && len(results) > 1 {
		if ordered, ok := s.rerank(ctx, query, results); ok {
			results, reranked = ordered, true
		}
	}
	return results, nil
}

// rerank falls back to the vector order when the rerank call fails.
func (s *Service) rerank(ctx context.Context, query string, results []SearchResult) ([]SearchResult, bool) {
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content
	}
	indices, err := s.reranker.Rerank(ctx, query, docs, s.rerankTopN)
	if err != nil || len(indices) == 0 {
		slog.WarnContext(ctx, "rerank failed, keeping vector order", "error", err)
		return results, false
	}
	ordered := make([]SearchResult, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(results) {
			ordered = append(ordered, results[idx])
		}
	}
	return ordered, true
}

func appendUnique(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
