package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Code generates source code for the request. Settings: language (default
// python). The snippet is appended to tool_outputs.code.
func Code() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		lang := settingString(inv.Settings, "language", "python")

		system := fmt.Sprintf("Write %s code that fulfils the request. "+
			"Output the code only, no explanation, no code fences.", lang)
		user := inv.UserMessage
		if material := sourceMaterial(inv); material != "" {
			user = user + "\n\n" + material
		}

		out, err := chat(ctx, inv, system, user, llm.ChatOptions{Temperature: 0.2})
		if err != nil {
			return Result{}, err
		}
		out = stripFences(out)

		return Result{
			Action:  "code",
			Content: out,
			Metadata: map[string]any{
				"language": lang,
			},
			ContextUpdates: map[string]any{
				workflow.KeyToolOutputs: map[string]any{
					"code": []string{out},
				},
			},
		}, nil
	})
}
