package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog/log"

	"loom/internal/llm"
)

// Client adapts the OpenAI SDK to the llm.Gateway contract. With a custom
// BaseURL it also fronts any OpenAI-compatible server (Ollama, llama.cpp, mlx).
type Client struct {
	sdk            sdk.Client
	apiKey         string
	smallModel     string
	largeModel     string
	embeddingModel string
	dimensions     int
	name           string
}

// Options configure a Client beyond credentials.
type Options struct {
	APIKey         string
	BaseURL        string
	SmallModel     string
	LargeModel     string
	EmbeddingModel string
	Dimensions     int
	// Name labels the provider in errors and logs ("openai" or "ollama").
	Name string
	HTTP *http.Client
}

func New(o Options) *Client {
	if o.HTTP == nil {
		o.HTTP = &http.Client{Timeout: 180 * time.Second}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithHTTPClient(o.HTTP),
	}
	if base := strings.TrimSpace(o.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	name := o.Name
	if name == "" {
		name = "openai"
	}
	return &Client{
		sdk:            sdk.NewClient(opts...),
		apiKey:         o.APIKey,
		smallModel:     o.SmallModel,
		largeModel:     o.LargeModel,
		embeddingModel: o.EmbeddingModel,
		dimensions:     o.Dimensions,
		name:           name,
	}
}

func (c *Client) model(class llm.ModelClass) string {
	if class == llm.ModelSmall {
		return c.smallModel
	}
	return c.largeModel
}

func (c *Client) Chat(ctx context.Context, class llm.ModelClass, msgs []llm.Message, opts llm.ChatOptions) (string, error) {
	if c.apiKey == "" && c.name == "openai" {
		return "", &llm.ConfigurationError{Reason: "OPENAI_API_KEY is not set"}
	}
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model(class)),
		Messages: adaptMessages(msgs),
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		return "", c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return "", &llm.ProviderError{Provider: c.name, Err: errors.New("no choices returned")}
	}
	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).Msg("chat_ok")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.apiKey == "" && c.name == "openai" {
		return nil, &llm.ConfigurationError{Reason: "OPENAI_API_KEY is not set"}
	}
	params := sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(c.embeddingModel),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	start := time.Now()
	resp, err := c.sdk.Embeddings.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &llm.ProviderError{
			Provider: c.name,
			Err:      fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(resp.Data), len(texts)),
		}
	}
	// The API may return data out of order; honor the index field.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, &llm.ProviderError{Provider: c.name, Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	log.Debug().Int("texts", len(texts)).Dur("duration", dur).Msg("embed_ok")
	return out, nil
}

func (c *Client) wrap(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", llm.ErrRateLimited, c.name)
		}
		if apierr.StatusCode == http.StatusUnauthorized {
			return &llm.ConfigurationError{Reason: c.name + " rejected the configured credentials"}
		}
	}
	return &llm.ProviderError{Provider: c.name, Err: err}
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
