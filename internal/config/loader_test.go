package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	// isolate from whatever the host environment carries
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QDRANT_URL", "")
	t.Setenv("SMALL_MODEL", "")
	t.Setenv("LARGE_MODEL", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("PORT", "")
	t.Setenv("MAX_PARALLEL_AGENTS", "")
	t.Setenv("IMAGE_PROVIDER", "")
}

func TestLoadDefaults(t *testing.T) {
	setProviderEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Models.Small)
	assert.Equal(t, "gpt-4o", cfg.Models.Large)
	assert.Equal(t, "text-embedding-3-small", cfg.Models.Embedding)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1, cfg.Engine.MaxParallelAgents)
	assert.Equal(t, 16, cfg.Engine.EmbedBatchSize)
	assert.Equal(t, "dalle", cfg.ImageProvider)
}

func TestLoadMissingKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "bedrock")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOllamaNeedsNoKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Ollama.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Models.Embedding)
}

func TestLoadStoreBackendsExclusive(t *testing.T) {
	setProviderEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/loom")
	t.Setenv("QDRANT_URL", "http://localhost:6334")
	_, err := Load()
	require.Error(t, err)
}

func TestParallelAgentsClamped(t *testing.T) {
	setProviderEnv(t)
	t.Setenv("MAX_PARALLEL_AGENTS", "32")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.MaxParallelAgents)
}
