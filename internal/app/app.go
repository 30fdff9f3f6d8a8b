package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"docvault/features/file"
	"docvault/features/job"
	"docvault/features/stats"
	"docvault/internal/adapter/pubsub"
	"docvault/internal/adapter/reranker"
	"docvault/internal/config"
	"docvault/internal/extract"
	"docvault/internal/fetcher"
	"docvault/internal/middleware"
	"docvault/internal/pipeline"
	"docvault/internal/resilience"
	"docvault/internal/retrieval"
	"docvault/internal/stepstore"
	"docvault/internal/telemetry"
	"docvault/internal/text"
	"docvault/internal/worker"
)

type App struct {
	Handler   http.Handler
	Files     *file.Service
	Jobs      *job.Service
	Retrieval *retrieval.Service
	Ingest    *worker.IngestConsumer

	cfg *config.Config
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	if deps == nil || deps.DB == nil || deps.VectorStore == nil || deps.Publisher == nil || deps.AI == nil {
		return nil, errors.New("app: incomplete dependencies")
	}
	status := deps.Status
	if status == nil {
		status = pubsub.LogPublisher{}
	}

	steps := stepstore.NewPostgresStore(deps.DB)

	// Feature: File
	fileRepo := file.NewPostgresRepo(deps.DB)
	fileService := file.NewService(fileRepo, deps.Publisher, steps, deps.VectorStore, cfg.RecordUpdateAttempts)
	fileHandler := file.NewHandler(fileService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, deps.Publisher)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(fileRepo, jobRepo, deps.VectorStore)

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(deps.AI, deps.VectorStore, queryLogger)
	if cfg.RerankEnabled() {
		rr, err := reranker.NewClient(reranker.Config{
			Provider: cfg.RerankProvider,
			APIKey:   cfg.RerankAPIKey,
			BaseURL:  cfg.RerankBaseURL,
			Model:    cfg.RerankModel,
		}, resilience.NewGuard(resilience.DefaultGuardConfig("reranker")))
		if err != nil {
			return nil, err
		}
		retrievalService.WithReranker(rr, cfg.RerankTopN)
	}
	retrievalHandler := retrieval.NewHandler(retrievalService)

	// Pipeline
	chunker := text.NewChunker(text.Options{
		Size:        cfg.ChunkSize,
		Overlap:     cfg.ChunkOverlap,
		Concurrency: cfg.ChunkConcurrency,
		Titles:      cfg.ChunkTitles,
		Keywords:    cfg.ChunkKeywords,
		Summaries:   cfg.ChunkSummaries,
		Questions:   cfg.ChunkQuestions,
	}, deps.AI)

	orchestrator := pipeline.New(pipeline.Dependencies{
		Fetcher:   fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}, deps.Objects, cfg.MaxBlobBytes),
		Extractor: extract.New(),
		Analyzer:  deps.AI,
		Chunker:   chunker,
		Embedder:  deps.AI,
		Store:     deps.VectorStore,
		Publisher: status,
		Records:   fileService,
		Tags:      fileService,
	},
		pipeline.WithStepStore(steps),
		pipeline.WithTimeouts(pipeline.Timeouts{
			Fetch:   cfg.FetchTimeout,
			Parse:   cfg.ParseTimeout,
			Analyze: cfg.AnalyzeTimeout,
			Chunk:   cfg.ChunkTimeout,
			Embed:   cfg.EmbedTimeout,
			Store:   cfg.StoreTimeout,
			Finish:  cfg.FinishTimeout,
		}),
		pipeline.WithEmbedMetadata(cfg.EmbedWithMetadata),
		pipeline.WithAnalysisMaxChars(cfg.AnalysisMaxChars),
		pipeline.WithMetrics(telemetry.NewPipelineMetrics()),
	)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("GET /files", middleware.CorrelationID(middleware.CORS(fileHandler.List)))
	mux.Handle("GET /tags", middleware.CorrelationID(middleware.CORS(fileHandler.Tags)))
	mux.Handle("GET /files/{id}", middleware.CorrelationID(middleware.CORS(fileHandler.Get)))
	mux.Handle("POST /files/{id}/embed", middleware.CorrelationID(middleware.CORS(fileHandler.Embed)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(middleware.CORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(middleware.CORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(middleware.CORS(statsHandler.GetStats)))
	mux.Handle("GET /search", middleware.CorrelationID(middleware.CORS(retrievalHandler.Search)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Files:     fileService,
		Jobs:      jobService,
		Retrieval: retrievalService,
		Ingest:    worker.NewIngestConsumer(orchestrator, jobService, cfg.MaxAttempts),
		cfg:       cfg,
	}, nil
}

// Run serves the API and consumes ingestion triggers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableWorker {
		g.Go(func() error { return a.runWorker(ctx) })
	}
	if a.cfg.EnableAPI {
		g.Go(func() error { return a.runServer(ctx) })
	}
	if !a.cfg.EnableAPI && !a.cfg.EnableWorker {
		slog.Warn("both API and worker are disabled, nothing to run")
	}

	return g.Wait()
}

func (a *App) runServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) runWorker(ctx context.Context) error {
	concurrency := max(a.cfg.WorkerConcurrency, 1)

	nsqCfg := nsq.NewConfig()
	// Attempts are counted by the consumer itself, which parks exhausted jobs.
	nsqCfg.MaxAttempts = 0
	nsqCfg.MaxInFlight = concurrency

	consumer, err := nsq.NewConsumer(config.TopicEmbedRequested, config.ChannelIngest, nsqCfg)
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(a.Ingest, concurrency)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		return fmt.Errorf("nsq connect error: %w", err)
	}
	slog.Info("ingest worker connected", "topic", config.TopicEmbedRequested, "channel", config.ChannelIngest, "concurrency", concurrency)

	<-ctx.Done()
	consumer.Stop()
	<-consumer.StopChan
	slog.Info("ingest worker stopped")
	return nil
}
