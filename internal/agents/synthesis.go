package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Synthesis folds everything gathered so far into one final answer.
// Settings: maxWords (0 = unconstrained). Writes final_answer.
func Synthesis() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		maxWords := settingInt(inv.Settings, "maxWords", 0)

		system := "You write the final answer to the user's request, grounded in the material provided. " +
			"Do not mention the material's structure; just answer."
		if maxWords > 0 {
			system += fmt.Sprintf(" Keep the answer under %d words.", maxWords)
		}

		user := inv.UserMessage
		if material := sourceMaterial(inv); material != "" {
			user = user + "\n\n" + material
		}

		answer, err := chat(ctx, inv, system, user, llm.ChatOptions{Temperature: 0.4})
		if err != nil {
			return Result{}, err
		}

		return Result{
			Action:  "synthesize",
			Content: answer,
			ContextUpdates: map[string]any{
				workflow.KeyFinalAnswer: answer,
			},
		}, nil
	})
}
