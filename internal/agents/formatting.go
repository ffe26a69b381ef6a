package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Formatting reshapes the best available content for presentation.
// Settings: style (default "clear, well-structured prose").
// Writes final_answer.
func Formatting() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		style := settingString(inv.Settings, "style", "clear, well-structured prose")

		system := fmt.Sprintf("Reformat the content as %s. Do not add or remove information.", style)
		out, err := chat(ctx, inv, system, bestContent(inv), llm.ChatOptions{Temperature: 0.2})
		if err != nil {
			return Result{}, err
		}

		return Result{
			Action:  "format",
			Content: out,
			Metadata: map[string]any{
				"style": style,
			},
			ContextUpdates: map[string]any{
				workflow.KeyFinalAnswer: out,
			},
		}, nil
	})
}
