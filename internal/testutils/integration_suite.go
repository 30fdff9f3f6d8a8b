package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docvault/internal/config"
)

// IntegrationSuite starts the backing services the ingestion backend talks to.
// The Postgres image ships the vector extension so the same database serves
// both the application tables and the pgvector backend.
type IntegrationSuite struct {
	T             *testing.T
	DB            *sql.DB
	DSN           string
	Weaviate      *weaviate.Client
	WeaviateHost  string
	NSQ           *nsq.Producer
	NSQDAddr      string
	NSQDHTTPAddr  string
	Redis         *redis.Client
	RedisAddr     string
	MigrationPath string

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
	redisContainer    testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	// 1. Postgres + pgvector
	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("docvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	s.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", s.DSN)
	require.NoError(s.T, err)

	_, b, _, _ := runtime.Caller(0)
	s.MigrationPath = fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))

	m, err := migrate.New(s.MigrationPath, s.DSN)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	// 2. Weaviate
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "semitechnologies/weaviate:1.33.0",
			ExposedPorts: []string{"8080/tcp", "50051/tcp"},
			Env: map[string]string{
				"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
				"DEFAULT_VECTORIZER_MODULE":               "none",
				"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
			},
			WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	s.WeaviateHost = s.endpoint(ctx, weaviateC, "8080/tcp")
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   s.WeaviateHost,
		Scheme: "http",
	})
	require.NoError(s.T, err)

	// 3. NSQ
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nsqio/nsq:v1.3.0",
			ExposedPorts: []string{"4150/tcp", "4151/tcp"},
			Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
			WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	s.NSQDAddr = s.endpoint(ctx, nsqC, "4150/tcp")
	s.NSQDHTTPAddr = s.endpoint(ctx, nsqC, "4151/tcp")
	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)

	// 4. Redis
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.redisContainer = redisC
	s.RedisAddr = s.endpoint(ctx, redisC, "6379/tcp")
	s.Redis = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
}

// GetAppConfig returns a configuration pointing at the suite's containers.
// AI credentials are left empty; tests inject their own provider.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	host, portStr, err := net.SplitHostPort(s.pgEndpoint())
	require.NoError(s.T, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(s.T, err)

	return &config.Config{
		DBHost:        host,
		DBPort:        port,
		DBUser:        "test",
		DBPass:        "test",
		DBName:        "docvault_test",
		MigrationPath: s.MigrationPath,

		VectorBackend:       config.VectorBackendWeaviate,
		VectorIndexName:     "TestChunk",
		EmbeddingDimensions: 3,
		WeaviateHost:        s.WeaviateHost,
		WeaviateScheme:      "http",

		NSQDHost:          s.NSQDAddr,
		NSQDHTTP:          s.NSQDHTTPAddr,
		RedisURL:          s.RedisAddr,
		WorkerConcurrency: 1,
		MaxAttempts:       3,

		AIProvider:       config.AIProviderGemini,
		MaxBlobBytes:     1 << 20,
		AnalysisMaxChars: 10000,

		ChunkSize:         200,
		ChunkOverlap:      20,
		ChunkConcurrency:  2,
		ChunkTitles:       true,
		ChunkKeywords:     true,
		EmbedWithMetadata: true,

		FetchTimeout:   10 * time.Second,
		ParseTimeout:   10 * time.Second,
		AnalyzeTimeout: 10 * time.Second,
		ChunkTimeout:   10 * time.Second,
		EmbedTimeout:   10 * time.Second,
		StoreTimeout:   10 * time.Second,
		FinishTimeout:  10 * time.Second,

		RecordUpdateAttempts: 3,
		EnableAPI:            true,
		EnableWorker:         true,
		ServerPort:           8081,
		QueryLogPath:         filepath.Join(s.T.TempDir(), "query.log"),
		LogLevel:             "debug",
		ServiceName:          "docvault-test",

		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) pgEndpoint() string {
	return s.endpoint(context.Background(), s.pgContainer, "5432/tcp")
}

// ConsumeOne waits for a single message on topic and returns it, or nil on timeout.
func (s *IntegrationSuite) ConsumeOne(topic string) *nsq.Message {
	cfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(topic, "test-"+strconv.FormatInt(time.Now().UnixNano(), 36), cfg)
	require.NoError(s.T, err)
	consumer.SetLoggerLevel(nsq.LogLevelWarning)

	received := make(chan *nsq.Message, 1)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		select {
		case received <- m:
		default:
		}
		return nil
	}))
	require.NoError(s.T, consumer.ConnectToNSQD(s.NSQDAddr))
	defer consumer.Stop()

	select {
	case m := <-received:
		return m
	case <-time.After(10 * time.Second):
		return nil
	}
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(ctx)
	}
	for _, c := range []testcontainers.Container{s.weaviateContainer, s.nsqContainer, s.redisContainer} {
		if c != nil {
			_ = c.Terminate(ctx)
		}
	}
}
