package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	a := ChunkID("file-1", 0)
	assert.Equal(t, a, ChunkID("file-1", 0))
	assert.NotEqual(t, a, ChunkID("file-1", 1))
	assert.NotEqual(t, a, ChunkID("file-2", 0))
	assert.Len(t, a, 36)
}

func TestEmbeddingInput(t *testing.T) {
	c := Chunk{Text: "body text", PageIndex: 2, FileName: "a.pdf", Title: "Intro", Keywords: []string{"intro"}}

	assert.Equal(t, "body text", EmbeddingInput(c, false))

	got := EmbeddingInput(c, true)
	assert.True(t, strings.HasPrefix(got, `{"page":2,"fileName":"a.pdf","title":"Intro","keywords":["intro"]}`))
	assert.True(t, strings.HasSuffix(got, "\n\nbody text"))
}

func TestBuildRecords_AlignsVectorsAndMetadata(t *testing.T) {
	req := IngestionRequest{FileID: "f", FileName: "a.txt", BlobURL: "s3://b/a.txt", OwnerUserID: "u"}
	chunks := []Chunk{{Text: "one", PageIndex: 1}, {Text: "two", PageIndex: 2}}
	vectors := [][]float32{{1}, {2}}

	records := buildRecords(req, "text/plain", chunks, vectors)

	require.Len(t, records, 2)
	for i, r := range records {
		assert.Equal(t, ChunkID("f", i), r.ID)
		assert.Equal(t, vectors[i], r.Vector)
		assert.Equal(t, chunks[i].Text, r.Metadata.Text)
		assert.Equal(t, i, r.Metadata.ChunkIndex)
		assert.Equal(t, "u", r.Metadata.OwnerUserID)
		assert.Equal(t, "text/plain", r.Metadata.MimeType)
	}
}

func TestMemoryStepStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStepStore()

	require.NoError(t, s.Put(ctx, "job", memoChunk, []byte(`["a"]`)))
	require.NoError(t, s.Put(ctx, "job-2", memoChunk, []byte(`["b"]`)))

	v, ok := loadStep[[]string](ctx, s, "job", memoChunk)
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	require.NoError(t, s.Clear(ctx, "job"))
	_, ok, _ = s.Get(ctx, "job", memoChunk)
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "job-2", memoChunk)
	assert.True(t, ok)
}

func TestLoadStep_UndecodableIsMiss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStepStore()
	require.NoError(t, s.Put(ctx, "job", memoEmbed, []byte("not json")))

	_, ok := loadStep[[][]float32](ctx, s, "job", memoEmbed)
	assert.False(t, ok)
}
