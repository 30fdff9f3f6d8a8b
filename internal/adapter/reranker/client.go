// Package reranker reorders search candidates with a hosted cross-encoder.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"docvault/internal/resilience"
)

const (
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

var ErrUnknownProvider = errors.New("unknown rerank provider")

var defaults = map[string]struct{ url, model string }{
	ProviderJina:   {"https://api.jina.ai/v1/rerank", "jina-reranker-v2-base-multilingual"},
	ProviderCohere: {"https://api.cohere.ai/v1/rerank", "rerank-english-v3.0"},
}

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// Client talks to the Jina or Cohere rerank endpoint. Both accept the same
// request and answer with results ordered by relevance.
type Client struct {
	url    string
	model  string
	apiKey string
	client *http.Client
	guard  *resilience.Guard
}

func NewClient(cfg Config, guard *resilience.Guard) (*Client, error) {
	d, ok := defaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	c := &Client{
		url:    d.url,
		model:  d.model,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: 10 * time.Second},
		guard:  guard,
	}
	if cfg.BaseURL != "" {
		c.url = cfg.BaseURL
	}
	if cfg.Model != "" {
		c.model = cfg.Model
	}
	return c, nil
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns indices into docs, most relevant first, at most topN of them.
func (c *Client) Rerank(ctx context.Context, query string, docs []string, topN int) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: docs, TopN: topN})
	if err != nil {
		return nil, err
	}

	var out rerankResponse
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rerank api error: %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, topN)
	seen := make(map[int]bool, topN)
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		indices = append(indices, r.Index)
		if len(indices) == topN {
			break
		}
	}
	return indices, nil
}
