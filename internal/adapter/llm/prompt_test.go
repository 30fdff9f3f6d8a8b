package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"docvault/internal/pipeline"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1} "))
}

func TestDecodeAnalysis(t *testing.T) {
	t.Run("normalizes", func(t *testing.T) {
		a, err := DecodeAnalysis("```json\n{\"summary\":\" A will. \",\"tags\":[\"Legal\",\"legal\",\"Estate\"]}\n```")
		require.NoError(t, err)
		assert.Equal(t, "A will.", a.Summary)
		assert.Equal(t, []string{"legal", "estate"}, a.Tags)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeAnalysis("not json")
		assert.ErrorIs(t, err, pipeline.ErrInvalidAnalysis)
	})
}

func TestAnalysisPromptListsExistingTags(t *testing.T) {
	p := AnalysisPrompt("body text", []string{"tax", "insurance"})
	assert.Contains(t, p, "[tax, insurance]")
	assert.Contains(t, p, "up to 5 tags")
	assert.Contains(t, p, "body text")
}

func TestDecodeEnrichment(t *testing.T) {
	e, err := DecodeEnrichment(`{"summary":"s","questions":["q1"]}`)
	require.NoError(t, err)
	assert.Equal(t, "s", e.Summary)
	assert.Equal(t, []string{"q1"}, e.Questions)
}

func TestMarkTransient(t *testing.T) {
	assert.NoError(t, MarkTransient(nil))

	throttled := &googleapi.Error{Code: 429, Message: "quota"}
	assert.ErrorIs(t, MarkTransient(throttled), pipeline.ErrTransient)

	server := &googleapi.Error{Code: 503}
	assert.ErrorIs(t, MarkTransient(server), pipeline.ErrTransient)

	bad := &googleapi.Error{Code: 400}
	assert.NotErrorIs(t, MarkTransient(bad), pipeline.ErrTransient)

	plain := errors.New("boom")
	assert.Equal(t, plain, MarkTransient(plain))
}
