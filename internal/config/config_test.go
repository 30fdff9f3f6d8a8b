package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 0, cfg.EmbeddingDimensions)
	assert.Equal(t, 3072, cfg.EmbeddingDimensionsOrDefault())
	assert.Equal(t, int64(10485760), cfg.MaxBlobBytes)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.FinishTimeout)
	assert.Equal(t, config.VectorBackendWeaviate, cfg.VectorBackend)
	assert.True(t, cfg.EmbedWithMetadata)
	assert.False(t, cfg.ChunkSummaries)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file")
	if err := os.WriteFile(".env", content, 0o644); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_StageTimeouts(t *testing.T) {
	t.Setenv("STAGE_TIMEOUT_EMBED", "5s")
	t.Setenv("STAGE_TIMEOUT_ANALYZE", "1m30s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 90*time.Second, cfg.AnalyzeTimeout)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "milvus")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfig_DerivedValues(t *testing.T) {
	cfg := &config.Config{DBHost: "db", DBPort: 5432, DBUser: "u", DBPass: "p", DBName: "n", AIProvider: config.AIProviderOpenAI}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", cfg.VectorDSN())
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModelOrDefault())
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModelOrDefault())

	cfg.VectorDBURL = "postgres://vec"
	cfg.ChatModel = "qwen-max-latest"
	assert.Equal(t, "postgres://vec", cfg.VectorDSN())
	assert.Equal(t, "qwen-max-latest", cfg.ChatModelOrDefault())
}

func TestConfig_EmbeddingDimensionsFollowProvider(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     int
	}{
		{config.AIProviderGemini, "", 3072},
		{config.AIProviderGemini, "text-embedding-004", 768},
		{config.AIProviderOpenAI, "", 1536},
		{config.AIProviderOpenAI, "text-embedding-3-large", 3072},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			cfg := &config.Config{AIProvider: tt.provider, EmbeddingModel: tt.model}
			assert.Equal(t, tt.want, cfg.EmbeddingDimensionsOrDefault())
			assert.Equal(t, config.ModelDimensions[cfg.EmbeddingModelOrDefault()], cfg.EmbeddingDimensionsOrDefault())
		})
	}

	cfg := &config.Config{AIProvider: config.AIProviderGemini, EmbeddingDimensions: 3}
	assert.Equal(t, 3, cfg.EmbeddingDimensionsOrDefault())
}

func TestLoadConfig_DefaultsAreConsistent(t *testing.T) {
	for _, provider := range []string{config.AIProviderGemini, config.AIProviderOpenAI} {
		t.Run(provider, func(t *testing.T) {
			t.Setenv("AI_PROVIDER", provider)

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.Equal(t, config.ModelDimensions[cfg.EmbeddingModelOrDefault()], cfg.EmbeddingDimensionsOrDefault())
		})
	}
}

func TestLoadConfig_RejectsMismatchedDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "1536")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfig_RerankEnabled(t *testing.T) {
	cfg := &config.Config{}
	assert.False(t, cfg.RerankEnabled())

	cfg.RerankProvider = config.RerankProviderJina
	assert.False(t, cfg.RerankEnabled(), "no key, no reranking")

	cfg.RerankAPIKey = "k"
	assert.True(t, cfg.RerankEnabled())
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "user:42", config.UserChannel("42"))
}
