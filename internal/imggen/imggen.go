// Package imggen generates images behind one small interface so the
// image_generator handler stays provider-agnostic.
package imggen

import (
	"context"
	"encoding/base64"
	"fmt"

	"loom/internal/config"
)

// Image is one generated image, base64-wrapped for transport on the event
// stream.
type Image struct {
	MIMEType string `json:"mime_type"`
	B64Data  string `json:"b64_data"`
}

// DataURL renders the image as a data URL usable directly by a browser.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.B64Data)
}

func imageFromBytes(mime string, data []byte) Image {
	return Image{MIMEType: mime, B64Data: base64.StdEncoding.EncodeToString(data)}
}

// Generator produces images from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]Image, error)
}

// Build constructs the Generator for the configured IMAGE_PROVIDER. A nil
// Generator with nil error means image generation has no credentials; the
// image_generator handler reports that as a recoverable condition at call
// time rather than failing startup.
func Build(cfg config.Config) (Generator, error) {
	switch cfg.ImageProvider {
	case config.ImageProviderDalle:
		if cfg.OpenAI.APIKey == "" {
			return nil, nil
		}
		return newDalle(cfg), nil
	case config.ImageProviderGemini, config.ImageProviderNanoBanana:
		if cfg.Google.APIKey == "" {
			return nil, nil
		}
		return newGemini(cfg)
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", cfg.ImageProvider)
	}
}
