package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"docvault/internal/pipeline"
)

var ErrCorruptPDF = errors.New("corrupt pdf")

type ledongthucSource struct {
	r *pdf.Reader
}

func openLedongthuc(data []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("%w: %v", ErrCorruptPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}
	return ledongthucSource{r: reader}, nil
}

func (s ledongthucSource) NumPage() int {
	return s.r.NumPage()
}

func (s ledongthucSource) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, r)
		}
	}()

	page := s.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	fonts := make(map[string]*pdf.Font)
	return page.GetPlainText(fonts)
}

// extractPDF yields exactly one page per PDF page, in order. Pages without
// extractable text become empty strings so page indexes stay aligned.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) ([]pipeline.ExtractedPage, error) {
	src, err := e.openPDF(data)
	if err != nil {
		return nil, err
	}

	n := src.NumPage()
	pages := make([]pipeline.ExtractedPage, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := src.PageText(i)
		if err != nil {
			slog.WarnContext(ctx, "failed to extract text from page, keeping it empty", "page", i, "error", err)
			text = ""
		}
		pages = append(pages, pipeline.ExtractedPage{PageIndex: i - 1, Text: text})
	}

	slog.DebugContext(ctx, "pdf extracted", "pages", n)
	return pages, nil
}
