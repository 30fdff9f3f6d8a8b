package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docvault/internal/telemetry"
)

// Progress step names as seen by the subscribing client.
const (
	StepInitialize = "initialize"
	StepMimeCheck  = "mime-check"
	StepFetching   = "fetching"
	StepParsing    = "parsing"
	StepAnalyzing  = "analyzing"
	StepChunking   = "chunking"
	StepEmbedding  = "embedding"
	StepStoring    = "storing"
	StepFinishing  = "finishing"
	StepComplete   = "complete"
)

type stage struct {
	name     string
	step     string
	kind     Kind
	progress int
	message  string
}

var (
	stageFetch   = stage{"fetch", StepFetching, KindFetch, 10, "Fetching file"}
	stageParse   = stage{"parse", StepParsing, KindParse, 20, "Extracting text"}
	stageAnalyze = stage{"analyze", StepAnalyzing, KindAnalysis, 30, "Generating summary and tags"}
	stageChunk   = stage{"chunk", StepChunking, KindChunk, 50, "Splitting text into chunks"}
	stageEmbed   = stage{"embed", StepEmbedding, KindEmbedding, 70, "Generating embeddings"}
	stageStore   = stage{"store", StepStoring, KindStorage, 85, "Storing embeddings"}
	stageFinish  = stage{"finish", StepFinishing, KindRecordUpdate, 95, "Updating file record"}
)

type Timeouts struct {
	Fetch   time.Duration
	Parse   time.Duration
	Analyze time.Duration
	Chunk   time.Duration
	Embed   time.Duration
	Store   time.Duration
	Finish  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fetch:   60 * time.Second,
		Parse:   60 * time.Second,
		Analyze: 120 * time.Second,
		Chunk:   120 * time.Second,
		Embed:   120 * time.Second,
		Store:   60 * time.Second,
		Finish:  30 * time.Second,
	}
}

func (t Timeouts) forStage(name string) time.Duration {
	switch name {
	case "fetch":
		return t.Fetch
	case "parse":
		return t.Parse
	case "analyze":
		return t.Analyze
	case "chunk":
		return t.Chunk
	case "embed":
		return t.Embed
	case "store":
		return t.Store
	case "finish":
		return t.Finish
	}
	return 0
}

// Dependencies are the collaborators a job drives. All are required.
type Dependencies struct {
	Fetcher   Fetcher
	Extractor Extractor
	Analyzer  Analyzer
	Chunker   Chunker
	Embedder  Embedder
	Store     VectorStore
	Publisher StatusPublisher
	Records   RecordUpdater
	Tags      TagSource
}

type Option func(*Orchestrator)

func WithStepStore(s StepStore) Option {
	return func(o *Orchestrator) { o.steps = s }
}

func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

func WithEmbedMetadata(enabled bool) Option {
	return func(o *Orchestrator) { o.embedWithMetadata = enabled }
}

func WithAnalysisMaxChars(n int) Option {
	return func(o *Orchestrator) { o.analysisMaxChars = n }
}

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

type Orchestrator struct {
	deps              Dependencies
	steps             StepStore
	timeouts          Timeouts
	embedWithMetadata bool
	analysisMaxChars  int
	metrics           *telemetry.PipelineMetrics
	tracer            trace.Tracer
}

func New(deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:              deps,
		steps:             NewMemoryStepStore(),
		timeouts:          DefaultTimeouts(),
		embedWithMetadata: true,
		analysisMaxChars:  100000,
		tracer:            otel.Tracer("docvault/pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// job carries the per-invocation state: the request and the last step and
// progress value published.
type job struct {
	o        *Orchestrator
	req      IngestionRequest
	step     string
	progress int
}

// Run executes one ingestion job. It never panics and never returns an error:
// every failure is published to the owner and folded into the Result.
func (o *Orchestrator) Run(ctx context.Context, req IngestionRequest) (res Result) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "ingest.job", trace.WithAttributes(
		attribute.String("file.id", req.FileID),
		attribute.String("file.mime_type", req.MimeType),
		attribute.String("owner.id", req.OwnerUserID),
	))
	defer span.End()

	j := &job{o: o, req: req, step: StepInitialize}
	defer func() {
		if r := recover(); r != nil {
			res = j.fail(ctx, fmt.Errorf("panic: %v", r))
		}
		outcome := "success"
		if !res.Success {
			outcome = string(res.Kind)
			span.SetStatus(codes.Error, res.Message)
		}
		o.metrics.RecordJob(ctx, outcome, time.Since(start))
	}()

	slog.InfoContext(ctx, "ingestion started", "file_id", req.FileID, "owner_user_id", req.OwnerUserID, "mime_type", req.MimeType)
	j.publish(ctx, StatusStarted, StepInitialize, "Starting file processing", 0)

	format := ResolveFormat(req.MimeType)
	if !format.Supported() {
		return j.fail(ctx, &StageError{
			Kind: KindUnsupportedType,
			Step: StepMimeCheck,
			Err:  fmt.Errorf("%s", displayMime(req.MimeType)),
		})
	}

	pages, err := j.extract(ctx, format)
	if err != nil {
		return j.fail(ctx, err)
	}

	j.advance(ctx, stageAnalyze)
	analysis, err := memoStage(ctx, j, stageAnalyze, memoAnalyze, func(ctx context.Context) (Analysis, error) {
		return j.analyze(ctx, pages)
	})
	if err != nil {
		return j.fail(ctx, err)
	}

	j.advance(ctx, stageChunk)
	chunks, err := memoStage(ctx, j, stageChunk, memoChunk, func(ctx context.Context) ([]Chunk, error) {
		chunks, err := o.deps.Chunker.Chunk(ctx, req.FileName, pages)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			return nil, &StageError{Kind: KindEmptyChunks, Step: StepChunking, Err: ErrEmptyChunks}
		}
		return chunks, nil
	})
	if err != nil {
		return j.fail(ctx, err)
	}

	j.advance(ctx, stageEmbed)
	vectors, err := memoStage(ctx, j, stageEmbed, memoEmbed, func(ctx context.Context) ([][]float32, error) {
		inputs := make([]string, len(chunks))
		for i, c := range chunks {
			inputs[i] = EmbeddingInput(c, o.embedWithMetadata)
		}
		vectors, err := o.deps.Embedder.EmbedDocuments(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("%w: %d chunks, %d embeddings", ErrCountMismatch, len(chunks), len(vectors))
		}
		return vectors, nil
	})
	if err != nil {
		return j.fail(ctx, err)
	}

	j.advance(ctx, stageStore)
	if _, err := memoStage(ctx, j, stageStore, memoStore, func(ctx context.Context) (int, error) {
		records := buildRecords(req, format.MimeType, chunks, vectors)
		if err := o.deps.Store.Upsert(ctx, records); err != nil {
			return 0, err
		}
		return len(records), nil
	}); err != nil {
		return j.fail(ctx, err)
	}

	j.advance(ctx, stageFinish)
	if _, err := memoStage(ctx, j, stageFinish, memoFinish, func(ctx context.Context) (bool, error) {
		if err := o.deps.Records.MarkEmbedded(ctx, req.FileID, analysis.Summary, analysis.Tags); err != nil {
			return false, err
		}
		return true, nil
	}); err != nil {
		return j.fail(ctx, err)
	}

	j.publish(ctx, StatusCompleted, StepComplete, "File processed successfully", 100)
	slog.InfoContext(ctx, "ingestion completed", "file_id", req.FileID, "chunks", len(chunks), "duration", time.Since(start))

	return Result{Success: true, Message: fmt.Sprintf("File %s processed and embedded.", req.FileID)}
}

// extract fetches and parses the blob. A cached result skips the network entirely.
func (j *job) extract(ctx context.Context, format Format) ([]ExtractedPage, error) {
	pages, cached := loadStep[[]ExtractedPage](ctx, j.o.steps, j.req.FileID, memoExtract)

	j.advance(ctx, stageFetch)
	var data []byte
	if !cached {
		var err error
		data, err = runStage(ctx, j, stageFetch, func(ctx context.Context) ([]byte, error) {
			return j.o.deps.Fetcher.Fetch(ctx, j.req.SourceURL())
		})
		if err != nil {
			return nil, err
		}
	}

	j.advance(ctx, stageParse)
	if cached {
		return pages, nil
	}
	pages, err := runStage(ctx, j, stageParse, func(ctx context.Context) ([]ExtractedPage, error) {
		return j.o.deps.Extractor.Extract(ctx, format, data)
	})
	if err != nil {
		return nil, err
	}
	saveStep(ctx, j.o.steps, j.req.FileID, memoExtract, pages)
	return pages, nil
}

func (j *job) analyze(ctx context.Context, pages []ExtractedPage) (Analysis, error) {
	text := AnalysisText(pages, j.o.analysisMaxChars)
	if strings.TrimSpace(text) == "" {
		// Nothing to summarize; the chunk stage reports the empty document.
		return Analysis{}, nil
	}

	existing, err := j.o.deps.Tags.ListTags(ctx, j.req.OwnerUserID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load existing tags, continuing without them", "owner_user_id", j.req.OwnerUserID, "error", err)
		existing = nil
	}

	raw, err := j.o.deps.Analyzer.Analyze(ctx, text, existing)
	if err != nil {
		return Analysis{}, err
	}
	return NormalizeAnalysis(raw)
}

func (j *job) advance(ctx context.Context, s stage) {
	j.publish(ctx, StatusProcessing, s.step, s.message, s.progress)
}

func (j *job) publish(ctx context.Context, status Status, step, message string, progress int) {
	j.step, j.progress = step, progress
	ev := ProgressEvent{
		ManagedFileID: j.req.FileID,
		Status:        status,
		Step:          step,
		Message:       message,
		Progress:      progress,
	}
	if err := j.o.deps.Publisher.Publish(ctx, j.req.OwnerUserID, ev); err != nil {
		j.o.metrics.RecordPublishError(ctx)
		slog.WarnContext(ctx, "failed to publish progress event", "file_id", j.req.FileID, "step", step, "error", err)
	}
}

func (j *job) fail(ctx context.Context, err error) Result {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Kind: KindInternal, Step: j.step, Err: err}
	}
	msg := se.Message()
	j.publish(ctx, StatusError, se.Step, msg, j.progress)

	slog.ErrorContext(ctx, "ingestion failed",
		"file_id", j.req.FileID,
		"step", se.Step,
		"kind", se.Kind,
		"retryable", se.Retryable(),
		"error", se.Err,
	)
	return Result{Success: false, Message: msg, Kind: se.Kind, Retryable: se.Retryable()}
}

// runStage executes fn under the stage timeout and a tracing span, recovering
// panics, and classifies any failure into a *StageError.
func runStage[T any](ctx context.Context, j *job, s stage, fn func(context.Context) (T, error)) (v T, err error) {
	ctx, span := j.o.tracer.Start(ctx, "ingest."+s.name)
	defer span.End()

	if d := j.o.timeouts.forStage(s.name); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", s.name, r)
		}
		if err != nil {
			se := classify(s.kind, s.step, err)
			if se.Kind != KindTimeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				se = &StageError{Kind: KindTimeout, Step: s.step, Err: se.Err}
			}
			err = se
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		j.o.metrics.RecordStage(ctx, s.name, time.Since(start), err != nil)
	}()

	return fn(ctx)
}

// memoStage runs a stage through the step store.
func memoStage[T any](ctx context.Context, j *job, s stage, key string, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := loadStep[T](ctx, j.o.steps, j.req.FileID, key); ok {
		return v, nil
	}
	v, err := runStage(ctx, j, s, fn)
	if err != nil {
		return v, err
	}
	saveStep(ctx, j.o.steps, j.req.FileID, key, v)
	return v, nil
}

func displayMime(mimeType string) string {
	if strings.TrimSpace(mimeType) == "" {
		return "(none)"
	}
	return mimeType
}
