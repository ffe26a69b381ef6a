package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"loom/internal/llm"
)

const defaultMaxTokens int64 = 4096

// Client adapts the Anthropic SDK to the llm.Gateway contract. Anthropic has
// no embeddings API, so Embed delegates to a companion gateway (OpenAI or
// Ollama); without one, Embed fails with a ConfigurationError on first use.
type Client struct {
	sdk        anthropic.Client
	apiKey     string
	smallModel string
	largeModel string
	embedder   llm.Gateway
}

type Options struct {
	APIKey     string
	BaseURL    string
	SmallModel string
	LargeModel string
	// Embedder handles Embed calls; may be nil.
	Embedder llm.Gateway
	HTTP     *http.Client
}

func New(o Options) *Client {
	if o.HTTP == nil {
		o.HTTP = &http.Client{Timeout: 180 * time.Second}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(o.APIKey)),
		option.WithHTTPClient(o.HTTP),
	}
	if base := strings.TrimSpace(o.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &Client{
		sdk:        anthropic.NewClient(opts...),
		apiKey:     o.APIKey,
		smallModel: o.SmallModel,
		largeModel: o.LargeModel,
		embedder:   o.Embedder,
	}
}

func (c *Client) model(class llm.ModelClass) string {
	if class == llm.ModelSmall {
		return c.smallModel
	}
	return c.largeModel
}

func (c *Client) Chat(ctx context.Context, class llm.ModelClass, msgs []llm.Message, opts llm.ChatOptions) (string, error) {
	if c.apiKey == "" {
		return "", &llm.ConfigurationError{Reason: "ANTHROPIC_API_KEY is not set"}
	}
	system, converted := adaptMessages(msgs)

	maxTokens := defaultMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model(class)),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		return "", wrap(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).Msg("anthropic_chat_ok")
	return strings.TrimSpace(sb.String()), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, &llm.ConfigurationError{
			Reason: "anthropic has no embeddings API; set OPENAI_API_KEY or OLLAMA_BASE_URL for embeddings",
		}
	}
	return c.embedder.Embed(ctx, texts)
}

func wrap(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: anthropic", llm.ErrRateLimited)
		}
		if apierr.StatusCode == http.StatusUnauthorized {
			return &llm.ConfigurationError{Reason: "anthropic rejected the configured credentials"}
		}
	}
	return &llm.ProviderError{Provider: "anthropic", Err: err}
}

func adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}
