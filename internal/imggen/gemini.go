package imggen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"loom/internal/config"
)

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func newGemini(cfg config.Config) (*geminiGenerator, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.Google.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	// "nano-banana" is the flash image model's street name.
	model := "gemini-2.5-flash-image"
	if cfg.ImageProvider == config.ImageProviderGemini {
		model = "gemini-2.0-flash-preview-image-generation"
	}
	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) ([]Image, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, err
	}

	var images []Image
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			images = append(images, imageFromBytes(mime, part.InlineData.Data))
		}
	}
	log.Debug().Str("model", g.model).Dur("duration", time.Since(start)).Int("images", len(images)).Msg("gemini_image_ok")
	return images, nil
}
