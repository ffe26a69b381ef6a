package agents

import (
	"context"
	"errors"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// ImageGenerator turns the request into an image prompt and calls the
// configured image provider. Generated images land in tool_outputs.images as
// data URLs. A missing or failing provider is recoverable.
func ImageGenerator() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		if inv.Images == nil {
			return Result{}, &RecoverableError{Msg: "image provider not configured"}
		}

		prompt := settingString(inv.Settings, "imagePrompt", "")
		if prompt == "" {
			// Let the small model compress the request into a prompt; fall
			// back to the raw message when that fails.
			p, err := chat(ctx, inv, "Rewrite the request as one vivid image-generation prompt. "+
				"Output the prompt only.", inv.UserMessage, llm.ChatOptions{Temperature: 0.7})
			if err == nil && p != "" {
				prompt = p
			} else {
				prompt = inv.UserMessage
			}
		}

		images, err := inv.Images.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			return Result{}, &RecoverableError{Msg: "image generation failed", Err: err}
		}
		if len(images) == 0 {
			return Result{}, &RecoverableError{Msg: "image provider returned no images"}
		}

		urls := make([]string, 0, len(images))
		for _, img := range images {
			urls = append(urls, img.DataURL())
		}

		return Result{
			Action:  "generate_image",
			Content: fmt.Sprintf("generated %d image(s) for prompt: %s", len(images), prompt),
			Metadata: map[string]any{
				"images": len(images),
				"prompt": prompt,
			},
			ContextUpdates: map[string]any{
				workflow.KeyToolOutputs: map[string]any{
					"images": urls,
				},
			},
		}, nil
	})
}
