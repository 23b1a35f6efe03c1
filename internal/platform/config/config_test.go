package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.LLMModel)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopKResults)
	assert.InDelta(t, 0.75, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, time.Hour, cfg.RAG.CacheTTL)
	assert.True(t, cfg.RAG.HybridSearch)
	assert.Equal(t, 30*time.Second, cfg.Ingestion.PollInterval)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 100, cfg.API.RateLimitCount)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("HYBRID_SEARCH", "false")
	t.Setenv("CACHE_TTL_SECONDS", "60")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.InDelta(t, 0.5, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.False(t, cfg.RAG.HybridSearch)
	assert.Equal(t, time.Minute, cfg.RAG.CacheTTL)
}

func TestLoadRejectsOverlapNotLessThanSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := Load("")
	assert.ErrorContains(t, err, "CHUNK_OVERLAP")
}

func TestLoadRejectsUnknownAppEnv(t *testing.T) {
	t.Setenv("APP_ENV", "qa")

	_, err := Load("")
	assert.ErrorContains(t, err, "APP_ENV")
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("TOP_K_RESULTS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RAG.TopKResults)
}
