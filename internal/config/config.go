package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

const (
	VectorBackendWeaviate = "weaviate"
	VectorBackendPgvector = "pgvector"

	AIProviderGemini = "gemini"
	AIProviderOpenAI = "openai"

	RerankProviderJina   = "jina"
	RerankProviderCohere = "cohere"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docvault"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docvault"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector index
	VectorBackend       string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	VectorIndexName     string `envconfig:"VECTOR_INDEX_NAME" default:"DocumentChunk"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS"` // 0 derives it from the embedding model
	WeaviateHost        string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme      string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	VectorDBURL         string `envconfig:"VECTOR_DB_URL"` // pgvector; falls back to the main database

	// Messaging
	NSQLookupd        string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost          string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP          string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	RedisURL          string `envconfig:"REDIS_URL"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	MaxAttempts       int    `envconfig:"MAX_ATTEMPTS" default:"3"`

	// Blob storage
	MaxBlobBytes   int64  `envconfig:"MAX_BLOB_BYTES" default:"10485760"` // 10MB
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKey   string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`

	// AI
	AIProvider       string  `envconfig:"AI_PROVIDER" default:"gemini"`
	GeminiAPIKey     string  `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey     string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string  `envconfig:"OPENAI_BASE_URL"`
	ChatModel        string  `envconfig:"CHAT_MODEL"`
	EmbeddingModel   string  `envconfig:"EMBEDDING_MODEL"`
	AnalysisMaxChars int     `envconfig:"ANALYSIS_MAX_CHARS" default:"100000"`
	AIRequestsPerSec float64 `envconfig:"AI_REQUESTS_PER_SECOND" default:"5"`
	AIBurst          int     `envconfig:"AI_BURST" default:"5"`

	// Search reranking, off unless a provider and key are set
	RerankProvider string `envconfig:"RERANK_PROVIDER"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`
	RerankBaseURL  string `envconfig:"RERANK_BASE_URL"`
	RerankModel    string `envconfig:"RERANK_MODEL"`
	RerankTopN     int    `envconfig:"RERANK_TOP_N" default:"5"`

	// Chunking
	ChunkSize         int  `envconfig:"CHUNK_SIZE" default:"512"`
	ChunkOverlap      int  `envconfig:"CHUNK_OVERLAP" default:"50"`
	ChunkConcurrency  int  `envconfig:"CHUNK_CONCURRENCY" default:"4"`
	ChunkTitles       bool `envconfig:"CHUNK_TITLES" default:"true"`
	ChunkKeywords     bool `envconfig:"CHUNK_KEYWORDS" default:"true"`
	ChunkSummaries    bool `envconfig:"CHUNK_SUMMARIES" default:"false"`
	ChunkQuestions    bool `envconfig:"CHUNK_QUESTIONS" default:"false"`
	EmbedWithMetadata bool `envconfig:"EMBED_WITH_METADATA" default:"true"`

	// Stage timeouts
	FetchTimeout   time.Duration `envconfig:"STAGE_TIMEOUT_FETCH" default:"60s"`
	ParseTimeout   time.Duration `envconfig:"STAGE_TIMEOUT_PARSE" default:"60s"`
	AnalyzeTimeout time.Duration `envconfig:"STAGE_TIMEOUT_ANALYZE" default:"120s"`
	ChunkTimeout   time.Duration `envconfig:"STAGE_TIMEOUT_CHUNK" default:"120s"`
	EmbedTimeout   time.Duration `envconfig:"STAGE_TIMEOUT_EMBED" default:"120s"`
	StoreTimeout   time.Duration `envconfig:"STAGE_TIMEOUT_STORE" default:"60s"`
	FinishTimeout  time.Duration `envconfig:"STAGE_TIMEOUT_FINISH" default:"30s"`

	RecordUpdateAttempts int `envconfig:"RECORD_UPDATE_ATTEMPTS" default:"5"`

	// Server
	EnableAPI    bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool   `envconfig:"ENABLE_WORKER" default:"true"`
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"docvault"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case VectorBackendWeaviate, VectorBackendPgvector:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalidConfig, c.VectorBackend)
	}
	if c.VectorIndexName == "" {
		return fmt.Errorf("%w: VECTOR_INDEX_NAME", ErrMissingRequired)
	}
	switch c.AIProvider {
	case AIProviderGemini, AIProviderOpenAI:
	default:
		return fmt.Errorf("%w: AI_PROVIDER %q", ErrInvalidConfig, c.AIProvider)
	}

	if c.EmbeddingDimensions < 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSIONS must be positive", ErrInvalidConfig)
	}
	model := c.EmbeddingModelOrDefault()
	native, known := ModelDimensions[model]
	switch {
	case !known && c.EmbeddingDimensions == 0:
		return fmt.Errorf("%w: EMBEDDING_DIMENSIONS (unknown output size for model %s)", ErrMissingRequired, model)
	case known && c.EmbeddingDimensions != 0 && c.EmbeddingDimensions != native:
		return fmt.Errorf("%w: EMBEDDING_DIMENSIONS=%d but %s returns %d", ErrInvalidConfig, c.EmbeddingDimensions, model, native)
	}

	switch c.RerankProvider {
	case "", RerankProviderJina, RerankProviderCohere:
	default:
		return fmt.Errorf("%w: RERANK_PROVIDER %q", ErrInvalidConfig, c.RerankProvider)
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: MAX_ATTEMPTS must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// DSN returns the lib/pq connection string for the primary database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

// VectorDSN returns the pgvector connection URL, defaulting to the primary database.
func (c *Config) VectorDSN() string {
	if c.VectorDBURL != "" {
		return c.VectorDBURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) RerankEnabled() bool {
	return c.RerankProvider != "" && c.RerankAPIKey != ""
}

// ChatModelOrDefault picks a provider-appropriate model when CHAT_MODEL is unset.
func (c *Config) ChatModelOrDefault() string {
	if c.ChatModel != "" {
		return c.ChatModel
	}
	if strings.EqualFold(c.AIProvider, AIProviderOpenAI) {
		return "gpt-4o-mini"
	}
	return "gemini-2.0-flash"
}

// ModelDimensions is the native vector size of the embedding models we know.
// Neither provider adapter truncates, so the index must match these exactly.
var ModelDimensions = map[string]int{
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbeddingDimensionsOrDefault returns EMBEDDING_DIMENSIONS, or the native size
// of the configured embedding model when it is unset.
func (c *Config) EmbeddingDimensionsOrDefault() int {
	if c.EmbeddingDimensions > 0 {
		return c.EmbeddingDimensions
	}
	return ModelDimensions[c.EmbeddingModelOrDefault()]
}

func (c *Config) EmbeddingModelOrDefault() string {
	if c.EmbeddingModel != "" {
		return c.EmbeddingModel
	}
	if strings.EqualFold(c.AIProvider, AIProviderOpenAI) {
		return "text-embedding-3-small"
	}
	return "gemini-embedding-001"
}
