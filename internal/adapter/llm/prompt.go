// Package llm holds the prompts and response handling shared by the model adapters.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"docvault/internal/pipeline"
	"docvault/internal/text"
)

const analysisPrompt = `Extract a short summary and up to %d tags from the following text.
When choosing tags, prefer existing tags if they fit: [%s].
Only create a new tag when none of the existing tags describe the text.
Respond with JSON: {"summary": string, "tags": [string]}.

Text:
%s`

const enrichmentPrompt = `Summarize the following passage in one sentence and list up to 3 questions it answers.
Respond with JSON: {"summary": string, "questions": [string]}.

Passage:
%s`

func AnalysisPrompt(body string, existingTags []string) string {
	return fmt.Sprintf(analysisPrompt, pipeline.MaxTags, strings.Join(existingTags, ", "), body)
}

func EnrichmentPrompt(passage string) string {
	return fmt.Sprintf(enrichmentPrompt, passage)
}

// StripFences removes a surrounding markdown code fence from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeAnalysis parses and normalizes a model analysis response.
func DecodeAnalysis(raw string) (pipeline.Analysis, error) {
	var a pipeline.Analysis
	if err := json.Unmarshal([]byte(StripFences(raw)), &a); err != nil {
		return pipeline.Analysis{}, fmt.Errorf("%w: %v", pipeline.ErrInvalidAnalysis, err)
	}
	return pipeline.NormalizeAnalysis(a)
}

func DecodeEnrichment(raw string) (text.Enrichment, error) {
	var e text.Enrichment
	if err := json.Unmarshal([]byte(StripFences(raw)), &e); err != nil {
		return text.Enrichment{}, fmt.Errorf("decode enrichment: %w", err)
	}
	return e, nil
}

// MarkTransient wraps err with pipeline.ErrTransient when the provider
// reported throttling or a server-side failure.
func MarkTransient(err error) error {
	if err == nil || errors.Is(err, pipeline.ErrTransient) {
		return err
	}
	if code := statusCode(err); code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%w: %w", pipeline.ErrTransient, err)
	}
	return err
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var httpCoded interface{ HTTPCode() int }
	if errors.As(err, &httpCoded) {
		return httpCoded.HTTPCode()
	}
	var statusCoded interface{ HTTPStatusCode() int }
	if errors.As(err, &statusCoded) {
		return statusCoded.HTTPStatusCode()
	}
	var withCode interface{ StatusCode() int }
	if errors.As(err, &withCode) {
		return withCode.StatusCode()
	}
	return 0
}
