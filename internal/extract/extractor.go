package extract

import (
	"context"
	"fmt"

	"docvault/internal/pipeline"
)

// pageSource is the page-oriented view of a PDF the extractor walks.
// Pages are numbered from 1.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type Extractor struct {
	openPDF func(data []byte) (pageSource, error)
}

func New() *Extractor {
	return &Extractor{openPDF: openLedongthuc}
}

func (e *Extractor) Extract(ctx context.Context, format pipeline.Format, data []byte) ([]pipeline.ExtractedPage, error) {
	switch format.Kind {
	case pipeline.FormatPDF:
		return e.extractPDF(ctx, data)
	case pipeline.FormatPlainText:
		return extractText(format.MimeType, data)
	default:
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedType, format.Reason)
	}
}
