package pipeline

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var chunkNamespace = uuid.MustParse("9b3c1f4e-7a2d-4e8b-a6f0-5d1c2b3a4e5f")

// ChunkID is stable per (fileID, chunkIndex) so repeated upserts overwrite.
func ChunkID(fileID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fileID+":"+strconv.Itoa(chunkIndex))).String()
}

// EmbeddingInput is the text sent to the embedding model for one chunk.
// With metadata the chunk context is serialized ahead of the text.
func EmbeddingInput(c Chunk, withMetadata bool) string {
	if !withMetadata {
		return c.Text
	}
	meta := struct {
		Page      int      `json:"page"`
		FileName  string   `json:"fileName"`
		Title     string   `json:"title,omitempty"`
		Keywords  []string `json:"keywords,omitempty"`
		Summary   string   `json:"summary,omitempty"`
		Questions []string `json:"questions,omitempty"`
	}{c.PageIndex, c.FileName, c.Title, c.Keywords, c.Summary, c.Questions}

	raw, err := json.Marshal(meta)
	if err != nil {
		return c.Text
	}
	var b strings.Builder
	b.Grow(len(raw) + 2 + len(c.Text))
	b.Write(raw)
	b.WriteString("\n\n")
	b.WriteString(c.Text)
	return b.String()
}

func buildRecords(req IngestionRequest, mimeType string, chunks []Chunk, vectors [][]float32) []VectorRecord {
	records := make([]VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = VectorRecord{
			ID:     ChunkID(req.FileID, i),
			Vector: vectors[i],
			Metadata: RecordMetadata{
				Text:        c.Text,
				FileID:      req.FileID,
				FileName:    req.FileName,
				BlobURL:     req.BlobURL,
				DownloadURL: req.DownloadURL,
				MimeType:    mimeType,
				OwnerUserID: req.OwnerUserID,
				Page:        c.PageIndex,
				ChunkIndex:  i,
				Title:       c.Title,
				Keywords:    c.Keywords,
				Summary:     c.Summary,
				Questions:   c.Questions,
			},
		}
	}
	return records
}
