package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"markdown heading", "intro line\n## Installation Guide ##\nbody", "Installation Guide"},
		{"first line", "\n\n  Quarterly report  \nbody", "Quarterly report"},
		{"empty", "   ", ""},
		{"long line truncated", strings.Repeat("x", 200), strings.Repeat("x", maxTitle)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.content))
		})
	}
}

func TestKeywords(t *testing.T) {
	content := "Vector search uses vector indexes. The index stores vectors; search is fast. 2024 2024"

	got := Keywords(content, 3)
	assert.Equal(t, []string{"search", "vector", "fast"}, got)
}

func TestKeywords_OnlyStopwords(t *testing.T) {
	assert.Nil(t, Keywords("the and for with", 5))
}
