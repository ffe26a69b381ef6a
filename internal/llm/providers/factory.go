package providers

import (
	"fmt"
	"net/http"

	"loom/internal/config"
	"loom/internal/llm"
	anthropicllm "loom/internal/llm/anthropic"
	openaillm "loom/internal/llm/openai"
)

// Build constructs an llm.Gateway from the configured provider choice.
// - openai: OpenAI SDK for chat and embeddings
// - ollama: OpenAI SDK against the Ollama OpenAI-compatible endpoint
// - anthropic: Anthropic SDK for chat; embeddings fall back to an
//   OpenAI-compatible endpoint when one is configured
func Build(cfg config.Config, httpClient *http.Client) (llm.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaillm.New(openaillm.Options{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			SmallModel:     cfg.Models.Small,
			LargeModel:     cfg.Models.Large,
			EmbeddingModel: cfg.Models.Embedding,
			Dimensions:     cfg.Models.Dimensions,
			Name:           "openai",
			HTTP:           httpClient,
		}), nil
	case config.ProviderOllama:
		return openaillm.New(openaillm.Options{
			APIKey:         "ollama", // the endpoint ignores the key but the SDK requires one
			BaseURL:        cfg.Ollama.BaseURL,
			SmallModel:     cfg.Models.Small,
			LargeModel:     cfg.Models.Large,
			EmbeddingModel: cfg.Models.Embedding,
			Dimensions:     cfg.Models.Dimensions,
			Name:           "ollama",
			HTTP:           httpClient,
		}), nil
	case config.ProviderAnthropic:
		embedder := buildEmbedder(cfg, httpClient)
		return anthropicllm.New(anthropicllm.Options{
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			SmallModel: cfg.Models.Small,
			LargeModel: cfg.Models.Large,
			Embedder:   embedder,
			HTTP:       httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// buildEmbedder picks an OpenAI-compatible embedding endpoint for providers
// that lack one of their own. Returns nil when none is configured.
func buildEmbedder(cfg config.Config, httpClient *http.Client) llm.Gateway {
	if cfg.OpenAI.APIKey != "" {
		return openaillm.New(openaillm.Options{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			EmbeddingModel: cfg.Models.Embedding,
			Dimensions:     cfg.Models.Dimensions,
			Name:           "openai",
			HTTP:           httpClient,
		})
	}
	if cfg.Ollama.BaseURL != "" {
		return openaillm.New(openaillm.Options{
			APIKey:         "ollama",
			BaseURL:        cfg.Ollama.BaseURL,
			EmbeddingModel: cfg.Models.Embedding,
			Dimensions:     cfg.Models.Dimensions,
			Name:           "ollama",
			HTTP:           httpClient,
		})
	}
	return nil
}
