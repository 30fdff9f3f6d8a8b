package text

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"docvault/internal/pipeline"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Options toggles each piece of derived chunk metadata independently.
type Options struct {
	Size        int
	Overlap     int
	Concurrency int
	Titles      bool
	Keywords    bool
	Summaries   bool
	Questions   bool
}

func DefaultOptions() Options {
	return Options{
		Size:        DefaultChunkSize,
		Overlap:     DefaultChunkOverlap,
		Concurrency: 4,
		Titles:      true,
		Keywords:    true,
	}
}

type Enrichment struct {
	Summary   string   `json:"summary"`
	Questions []string `json:"questions"`
}

// Enricher derives a summary and likely questions for one chunk.
type Enricher interface {
	Enrich(ctx context.Context, text string) (Enrichment, error)
}

type Chunker struct {
	opts     Options
	splitter textsplitter.RecursiveCharacter
	enricher Enricher
}

// NewChunker builds a paragraph-first recursive splitter. enricher may be nil
// when neither summaries nor questions are enabled.
func NewChunker(opts Options, enricher Enricher) *Chunker {
	if opts.Size <= 0 {
		opts.Size = DefaultChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = DefaultChunkOverlap
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.Size),
		textsplitter.WithChunkOverlap(opts.Overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)
	return &Chunker{opts: opts, splitter: splitter, enricher: enricher}
}

// Chunk splits every page concurrently and flattens the result in page order.
func (c *Chunker) Chunk(ctx context.Context, fileName string, pages []pipeline.ExtractedPage) ([]pipeline.Chunk, error) {
	perPage := make([][]pipeline.Chunk, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, p := range pages {
		g.Go(func() error {
			chunks, err := c.chunkPage(gctx, fileName, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.PageIndex+1, err)
			}
			perPage[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []pipeline.Chunk
	for _, chunks := range perPage {
		out = append(out, chunks...)
	}
	return out, nil
}

func (c *Chunker) chunkPage(ctx context.Context, fileName string, page pipeline.ExtractedPage) ([]pipeline.Chunk, error) {
	if strings.TrimSpace(page.Text) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(page.Text)
	if err != nil {
		return nil, err
	}

	chunks := make([]pipeline.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunk := pipeline.Chunk{
			Text:      part,
			PageIndex: page.PageIndex + 1,
			FileName:  fileName,
		}
		if c.opts.Titles {
			chunk.Title = Title(part)
		}
		if c.opts.Keywords {
			chunk.Keywords = Keywords(part, maxKeywords)
		}
		if err := c.enrich(ctx, &chunk); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (c *Chunker) enrich(ctx context.Context, chunk *pipeline.Chunk) error {
	if !c.opts.Summaries && !c.opts.Questions {
		return nil
	}
	if c.enricher == nil {
		return fmt.Errorf("chunk enrichment enabled without an enricher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := c.enricher.Enrich(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("enrich chunk: %w", err)
	}
	if c.opts.Summaries {
		chunk.Summary = strings.TrimSpace(e.Summary)
	}
	if c.opts.Questions {
		chunk.Questions = e.Questions
	}
	return nil
}
