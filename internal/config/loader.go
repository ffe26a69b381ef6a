package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables.
	// Repository-local configuration deterministically controls runtime
	// behavior in development unless explicitly changed.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Host = strings.TrimSpace(os.Getenv("HOST"))
	cfg.Port = intFromEnv("PORT", 8080)
	cfg.DataPath = firstNonEmpty(strings.TrimSpace(os.Getenv("DATA_PATH")), ".loom")
	cfg.KnowledgePath = strings.TrimSpace(os.Getenv("KNOWLEDGE_PATH"))
	cfg.CorporaConfig = strings.TrimSpace(os.Getenv("CORPORA_CONFIG"))

	cfg.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	cfg.ImageProvider = strings.ToLower(strings.TrimSpace(os.Getenv("IMAGE_PROVIDER")))
	if cfg.ImageProvider == "" {
		cfg.ImageProvider = ImageProviderDalle
	}

	cfg.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	cfg.Ollama.BaseURL = strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL"))
	if cfg.Ollama.BaseURL == "" && cfg.Provider == ProviderOllama {
		// Only the ollama provider gets a default endpoint; anthropic uses an
		// Ollama embedder only when OLLAMA_BASE_URL is set explicitly.
		cfg.Ollama.BaseURL = "http://localhost:11434/v1"
	}
	cfg.Google.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")))

	cfg.Models.Small = strings.TrimSpace(os.Getenv("SMALL_MODEL"))
	cfg.Models.Large = strings.TrimSpace(os.Getenv("LARGE_MODEL"))
	cfg.Models.Embedding = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL"))
	cfg.Models.Dimensions = intFromEnv("EMBEDDING_DIMENSIONS", 1536)

	cfg.Store.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Store.QdrantURL = strings.TrimSpace(os.Getenv("QDRANT_URL"))

	cfg.Engine.MaxParallelAgents = intFromEnv("MAX_PARALLEL_AGENTS", 1)
	cfg.Engine.RequestTimeoutSec = intFromEnv("REQUEST_TIMEOUT_SECONDS", 300)
	cfg.Engine.EmbedBatchSize = intFromEnv("EMBED_BATCH_SIZE", 16)
	cfg.Engine.SnippetChars = intFromEnv("SNIPPET_CHARS", 700)

	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	applyModelDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyModelDefaults(cfg *Config) {
	switch cfg.Provider {
	case ProviderAnthropic:
		cfg.Models.Small = firstNonEmpty(cfg.Models.Small, "claude-3-5-haiku-latest")
		cfg.Models.Large = firstNonEmpty(cfg.Models.Large, "claude-sonnet-4-20250514")
	case ProviderOllama:
		cfg.Models.Small = firstNonEmpty(cfg.Models.Small, "llama3.2")
		cfg.Models.Large = firstNonEmpty(cfg.Models.Large, "llama3.3")
		cfg.Models.Embedding = firstNonEmpty(cfg.Models.Embedding, "nomic-embed-text")
	default:
		cfg.Models.Small = firstNonEmpty(cfg.Models.Small, "gpt-4o-mini")
		cfg.Models.Large = firstNonEmpty(cfg.Models.Large, "gpt-4o")
	}
	cfg.Models.Embedding = firstNonEmpty(cfg.Models.Embedding, "text-embedding-3-small")
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case ProviderOllama:
		// no credentials required
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (want openai, anthropic or ollama)", cfg.Provider)
	}

	switch cfg.ImageProvider {
	case ImageProviderDalle, ImageProviderGemini, ImageProviderNanoBanana:
	default:
		return fmt.Errorf("unsupported IMAGE_PROVIDER %q (want dalle, gemini or nano-banana)", cfg.ImageProvider)
	}

	if cfg.Store.DatabaseURL != "" && cfg.Store.QdrantURL != "" {
		return fmt.Errorf("DATABASE_URL and QDRANT_URL are mutually exclusive")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", cfg.Port)
	}
	if cfg.Engine.MaxParallelAgents < 1 {
		cfg.Engine.MaxParallelAgents = 1
	}
	if cfg.Engine.MaxParallelAgents > 8 {
		cfg.Engine.MaxParallelAgents = 8
	}
	if cfg.Engine.EmbedBatchSize <= 0 {
		cfg.Engine.EmbedBatchSize = 16
	}
	if cfg.Engine.SnippetChars <= 0 {
		cfg.Engine.SnippetChars = 700
	}
	return nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
