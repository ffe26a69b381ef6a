package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Summarization condenses the available material. Settings: maxWords
// (default 150). Writes final_answer only when no earlier stage has produced
// one yet.
func Summarization() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		maxWords := settingInt(inv.Settings, "maxWords", 150)

		system := fmt.Sprintf("Summarize the content in at most %d words. "+
			"Keep the key facts; drop the filler.", maxWords)
		out, err := chat(ctx, inv, system, bestContent(inv), llm.ChatOptions{Temperature: 0.3})
		if err != nil {
			return Result{}, err
		}

		updates := map[string]any{}
		if contextString(inv.Context, workflow.KeyFinalAnswer) == "" {
			updates[workflow.KeyFinalAnswer] = out
		}

		return Result{
			Action:         "summarize",
			Content:        out,
			ContextUpdates: updates,
		}, nil
	})
}
