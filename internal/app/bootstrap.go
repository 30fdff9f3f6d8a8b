package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docvault/internal/adapter/gemini"
	"docvault/internal/adapter/openai"
	pgstore "docvault/internal/adapter/pgvector"
	"docvault/internal/adapter/pubsub"
	wstore "docvault/internal/adapter/weaviate"
	"docvault/internal/config"
	"docvault/internal/fetcher"
	"docvault/internal/pipeline"
	"docvault/internal/resilience"
	"docvault/internal/telemetry"
	"docvault/internal/text"
	"docvault/internal/vector"
)

// VectorStore is what the application needs from either vector backend.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, records []pipeline.VectorRecord) error
	Search(ctx context.Context, ownerUserID string, vec []float32, limit int) ([]vector.Hit, error)
	CountChunks(ctx context.Context) (int, error)
	DeleteByFile(ctx context.Context, fileID string) error
}

// AIProvider covers tagging, chunk enrichment and both embedding directions.
type AIProvider interface {
	Analyze(ctx context.Context, body string, existingTags []string) (pipeline.Analysis, error)
	Enrich(ctx context.Context, passage string) (text.Enrichment, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// TaskPublisher hands a trigger to the broker. *nsq.Producer satisfies it.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Dependencies are the long-lived connections New wires into the application.
type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	Publisher   TaskPublisher
	Status      pipeline.StatusPublisher
	AI          AIProvider
	Objects     fetcher.ObjectGetter

	closers []func(context.Context) error
}

func (d *Dependencies) onClose(fn func(context.Context) error) {
	d.closers = append(d.closers, fn)
}

// Close releases everything Bootstrap opened, newest first.
func (d *Dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			slog.Warn("failed to release dependency", "error", err)
		}
	}
	d.closers = nil
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}

func Bootstrap(ctx context.Context, cfg *config.Config) (deps *Dependencies, err error) {
	deps = &Dependencies{}
	defer func() {
		if err != nil {
			deps.Close(context.Background())
			deps = nil
		}
	}()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	if deps.DB, err = OpenDB(ctx, cfg); err != nil {
		return deps, err
	}
	deps.onClose(closeDB(deps.DB))
	if err = Migrate(deps.DB, cfg.MigrationPath); err != nil {
		return deps, err
	}
	slog.Info("migrations applied successfully")

	// Vector index
	if err = bootstrapVectorStore(ctx, cfg, deps, retryDelay); err != nil {
		return deps, err
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return deps, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.Publisher = producer
	deps.onClose(func(context.Context) error {
		producer.Stop()
		return nil
	})
	go createTopics(ctx, cfg.NSQDHTTP, config.TopicEmbedRequested)

	// Realtime status channel
	if cfg.RedisURL != "" {
		var rdb *redis.Client
		if rdb, err = pubsub.NewClient(ctx, cfg.RedisURL); err != nil {
			return deps, err
		}
		deps.onClose(func(context.Context) error { return rdb.Close() })
		deps.Status = pubsub.NewStatusPublisher(rdb)
	} else {
		slog.Warn("REDIS_URL not set, progress events will only be logged")
		deps.Status = pubsub.LogPublisher{}
	}

	if deps.AI, err = NewAIProvider(ctx, cfg); err != nil {
		return deps, err
	}

	s3Client, s3Err := fetcher.NewS3Client(ctx, fetcher.S3Config{
		Region:       cfg.AWSRegion,
		AccessKey:    cfg.AWSAccessKey,
		SecretKey:    cfg.AWSSecretKey,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if s3Err != nil {
		slog.Warn("s3 client unavailable, s3:// blob urls will fail", "error", s3Err)
	} else {
		deps.Objects = s3Client
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return deps, err
	}
	deps.onClose(shutdownTracer)

	return deps, nil
}

// OpenDB connects to the primary database, retrying while it comes up.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := pingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, time.Duration(cfg.BootstrapRetryDelaySeconds)*time.Second); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration) error {
	return resilience.RetryWithBackoff(ctx, func(ctx context.Context) error {
		err := db.PingContext(ctx)
		if err != nil {
			slog.Warn("failed to ping db, retrying...", "error", err)
		}
		return err
	}, max(attempts, 1), delay)
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

func bootstrapVectorStore(ctx context.Context, cfg *config.Config, deps *Dependencies, retryDelay time.Duration) error {
	switch cfg.VectorBackend {
	case config.VectorBackendPgvector:
		db, err := sql.Open("pgx", cfg.VectorDSN())
		if err != nil {
			return fmt.Errorf("pgvector open error: %w", err)
		}
		deps.onClose(closeDB(db))
		store, err := pgstore.NewStore(db, cfg.VectorIndexName, cfg.EmbeddingDimensionsOrDefault())
		if err != nil {
			return err
		}
		deps.VectorStore = store
	default:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return fmt.Errorf("weaviate client error: %w", err)
		}
		deps.VectorStore = wstore.NewStore(wClient, cfg.VectorIndexName, cfg.EmbeddingDimensionsOrDefault())
	}

	if err := EnsureSchemaWithRetry(ctx, deps.VectorStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return fmt.Errorf("%s schema error: %w", cfg.VectorBackend, err)
	}
	return nil
}

// NewAIProvider builds the configured model backend behind a shared breaker and limiter.
func NewAIProvider(ctx context.Context, cfg *config.Config) (AIProvider, error) {
	guardCfg := resilience.DefaultGuardConfig(cfg.AIProvider)
	if cfg.AIRequestsPerSec > 0 {
		guardCfg.RequestsPerSec = cfg.AIRequestsPerSec
	}
	if cfg.AIBurst > 0 {
		guardCfg.Burst = cfg.AIBurst
	}
	guard := resilience.NewGuard(guardCfg)

	switch cfg.AIProvider {
	case config.AIProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.ChatModelOrDefault(),
			EmbeddingModel: cfg.EmbeddingModelOrDefault(),
		}, guard)
	default:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return geminiProvider{
			Tagger:   gemini.NewTagger(client, cfg.ChatModelOrDefault(), guard),
			Embedder: gemini.NewEmbedder(client, cfg.EmbeddingModelOrDefault(), guard),
		}, nil
	}
}

type geminiProvider struct {
	*gemini.Tagger
	*gemini.Embedder
}

// createTopics pre-creates topics so consumers polling lookupd do not 404 before the first publish.
func createTopics(ctx context.Context, nsqdHTTP string, topics ...string) {
	client := &http.Client{Timeout: 5 * time.Second}
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	for _, topic := range topics {
		u := url.URL{Scheme: "http", Host: nsqdHTTP, Path: "/topic/create", RawQuery: url.Values{"topic": {topic}}.Encode()}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := client.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) {
				slog.Warn("nsqd http api unreachable", "addr", nsqdHTTP, "error", err)
			} else {
				slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			}
			continue
		}
		_ = resp.Body.Close()
	}
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store interface {
	EnsureSchema(ctx context.Context) error
}, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure vector schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
