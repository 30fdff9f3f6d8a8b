package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/pipeline"
)

type fakePDF struct {
	pages []string
	errs  map[int]error
}

func (f fakePDF) NumPage() int { return len(f.pages) }

func (f fakePDF) PageText(n int) (string, error) {
	if err, ok := f.errs[n]; ok {
		return "", err
	}
	return f.pages[n-1], nil
}

func withPDF(src pageSource, err error) *Extractor {
	return &Extractor{openPDF: func([]byte) (pageSource, error) { return src, err }}
}

func TestExtract_PlainText(t *testing.T) {
	e := New()
	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("text/plain"), []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].PageIndex)
	assert.Equal(t, "hello world", pages[0].Text)
}

func TestExtract_PlainTextStripsBOMAndRepairsUTF8(t *testing.T) {
	e := New()
	data := append([]byte("\xef\xbb\xbfcaf"), 0xff, 'e')
	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("text/markdown; charset=utf-8"), data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "caf�e", pages[0].Text)
}

func TestExtract_EmptyTextStillYieldsOnePage(t *testing.T) {
	e := New()
	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("text/plain"), nil)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "", pages[0].Text)
}

func TestExtract_HTML(t *testing.T) {
	e := New()
	html := []byte("<html><head><title>T</title></head><body><p>Quarterly revenue grew</p></body></html>")
	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("text/html"), html)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Quarterly revenue grew")
	assert.NotContains(t, pages[0].Text, "<p>")
}

func TestExtract_PDFKeepsEmptyPages(t *testing.T) {
	e := withPDF(fakePDF{pages: []string{"first", "", "third"}}, nil)

	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("application/pdf"), []byte("%PDF"))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.PageIndex)
	}
	assert.Equal(t, "first", pages[0].Text)
	assert.Equal(t, "", pages[1].Text)
	assert.Equal(t, "third", pages[2].Text)
}

func TestExtract_PDFPageErrorBecomesEmpty(t *testing.T) {
	e := withPDF(fakePDF{pages: []string{"a", "b"}, errs: map[int]error{1: errors.New("bad font")}}, nil)

	pages, err := e.Extract(context.Background(), pipeline.ResolveFormat("application/pdf"), nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "", pages[0].Text)
	assert.Equal(t, "b", pages[1].Text)
}

func TestExtract_PDFOpenFailure(t *testing.T) {
	e := withPDF(nil, errors.New("missing header"))

	_, err := e.Extract(context.Background(), pipeline.ResolveFormat("application/pdf"), nil)
	assert.Error(t, err)
}

func TestExtract_CorruptPDFWithRealReader(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), pipeline.ResolveFormat("application/pdf"), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestExtract_PDFHonoursCancellation(t *testing.T) {
	e := withPDF(fakePDF{pages: []string{"a", "b"}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, pipeline.ResolveFormat("application/pdf"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_Unsupported(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), pipeline.ResolveFormat("image/png"), []byte{0x89})
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedType)
}
