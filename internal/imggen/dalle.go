package imggen

import (
	"context"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/rs/zerolog/log"

	"loom/internal/config"
)

type dalleGenerator struct {
	sdk   sdk.Client
	model string
}

func newDalle(cfg config.Config) *dalleGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
	if base := strings.TrimSpace(cfg.OpenAI.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &dalleGenerator{sdk: sdk.NewClient(opts...), model: "dall-e-3"}
}

func (d *dalleGenerator) Generate(ctx context.Context, prompt string) ([]Image, error) {
	params := sdk.ImageGenerateParams{
		Prompt:         prompt,
		Model:          sdk.ImageModel(d.model),
		N:              param.NewOpt[int64](1),
		Size:           sdk.ImageGenerateParamsSize("1024x1024"),
		ResponseFormat: sdk.ImageGenerateParamsResponseFormatB64JSON,
	}

	start := time.Now()
	resp, err := d.sdk.Images.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(resp.Data))
	for _, img := range resp.Data {
		if strings.TrimSpace(img.B64JSON) == "" {
			continue
		}
		images = append(images, Image{MIMEType: "image/png", B64Data: img.B64JSON})
	}
	log.Debug().Str("model", d.model).Dur("duration", time.Since(start)).Int("images", len(images)).Msg("dalle_ok")
	return images, nil
}
