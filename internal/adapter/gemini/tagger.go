package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"docvault/internal/adapter/llm"
	"docvault/internal/pipeline"
	"docvault/internal/resilience"
	"docvault/internal/text"
)

// Tagger produces a document summary and tags with a JSON-constrained model.
type Tagger struct {
	client *genai.Client
	model  string
	guard  *resilience.Guard
}

func NewTagger(client *genai.Client, model string, guard *resilience.Guard) *Tagger {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Tagger{client: client, model: model, guard: guard}
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
		"tags":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary", "tags"},
}

var enrichmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":   {Type: genai.TypeString},
		"questions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary"},
}

func (t *Tagger) Analyze(ctx context.Context, body string, existingTags []string) (pipeline.Analysis, error) {
	raw, err := t.generate(ctx, analysisSchema, llm.AnalysisPrompt(body, existingTags))
	if err != nil {
		return pipeline.Analysis{}, err
	}
	return llm.DecodeAnalysis(raw)
}

// Enrich implements text.Enricher.
func (t *Tagger) Enrich(ctx context.Context, passage string) (text.Enrichment, error) {
	raw, err := t.generate(ctx, enrichmentSchema, llm.EnrichmentPrompt(passage))
	if err != nil {
		return text.Enrichment{}, err
	}
	return llm.DecodeEnrichment(raw)
}

func (t *Tagger) generate(ctx context.Context, schema *genai.Schema, prompt string) (string, error) {
	model := t.client.GenerativeModel(t.model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema

	var resp *genai.GenerateContentResponse
	err := t.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = model.GenerateContent(ctx, genai.Text(prompt))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", llm.MarkTransient(err))
	}

	out := responseText(resp)
	if out == "" {
		return "", fmt.Errorf("%w: empty model response", pipeline.ErrInvalidAnalysis)
	}
	return out, nil
}
