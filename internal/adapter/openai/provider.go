// Package openai adapts OpenAI-compatible chat and embedding APIs through langchaingo.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"docvault/internal/adapter/llm"
	"docvault/internal/pipeline"
	"docvault/internal/resilience"
	"docvault/internal/text"
)

type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

// Provider serves embedding, analysis and chunk enrichment from one client.
type Provider struct {
	chat     llms.Model
	embedder embeddings.Embedder
	guard    *resilience.Guard
	logger   *slog.Logger
}

func New(cfg Config, guard *resilience.Guard) (*Provider, error) {
	token := cfg.APIKey
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Provider{
		chat:     client,
		embedder: emb,
		guard:    guard,
		logger:   slog.Default().With("component", "openai"),
	}, nil
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to generate embeddings", "count", len(texts), "error", err)
		return nil, fmt.Errorf("openai embed: %w", llm.MarkTransient(err))
	}
	return out, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	var out []float32
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.embedder.EmbedQuery(ctx, query)
		return err
	})
	if err != nil {
		return nil, llm.MarkTransient(err)
	}
	return out, nil
}

func (p *Provider) Analyze(ctx context.Context, body string, existingTags []string) (pipeline.Analysis, error) {
	raw, err := p.complete(ctx, llm.AnalysisPrompt(body, existingTags))
	if err != nil {
		return pipeline.Analysis{}, err
	}
	return llm.DecodeAnalysis(raw)
}

func (p *Provider) Enrich(ctx context.Context, passage string) (text.Enrichment, error) {
	raw, err := p.complete(ctx, llm.EnrichmentPrompt(passage))
	if err != nil {
		return text.Enrichment{}, err
	}
	return llm.DecodeEnrichment(raw)
}

func (p *Provider) complete(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var resp *llms.ContentResponse
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.chat.GenerateContent(ctx, content, llms.WithTemperature(0), llms.WithJSONMode())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", llm.MarkTransient(err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", pipeline.ErrInvalidAnalysis)
	}
	return resp.Choices[0].Content, nil
}
