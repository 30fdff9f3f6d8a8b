package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxTags = 5

// NormalizeAnalysis trims, lower-cases and dedupes tags, caps them at MaxTags
// and rejects output without a summary or any tag.
func NormalizeAnalysis(a Analysis) (Analysis, error) {
	summary := strings.TrimSpace(a.Summary)
	if summary == "" {
		return Analysis{}, fmt.Errorf("%w: empty summary", ErrInvalidAnalysis)
	}

	seen := make(map[string]struct{}, len(a.Tags))
	tags := make([]string, 0, MaxTags)
	for _, t := range a.Tags {
		t = strings.ToLower(strings.Join(strings.Fields(t), " "))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
		if len(tags) == MaxTags {
			break
		}
	}
	if len(tags) == 0 {
		return Analysis{}, fmt.Errorf("%w: no tags", ErrInvalidAnalysis)
	}
	return Analysis{Summary: summary, Tags: tags}, nil
}

// AnalysisText joins page text for the tagger, cut at maxChars runes.
func AnalysisText(pages []ExtractedPage, maxChars int) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	text := strings.Join(parts, "\n\n")
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}
