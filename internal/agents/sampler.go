package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Sampler produces several independent drafts for later selection or
// synthesis. Settings: numCandidates (default 3, capped at 8). Writes
// candidates; content is the first draft.
func Sampler() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		n := settingInt(inv.Settings, "numCandidates", 3)
		if n < 1 {
			n = 1
		}
		if n > 8 {
			n = 8
		}

		user := inv.UserMessage
		if material := sourceMaterial(inv); material != "" {
			user = user + "\n\n" + material
		}

		candidates := make([]string, 0, n)
		for i := 0; i < n; i++ {
			system := fmt.Sprintf("You are draft writer %d of %d. Answer the request directly; "+
				"vary your angle from other drafts.", i+1, n)
			draft, err := chat(ctx, inv, system, user, llm.ChatOptions{Temperature: 0.9})
			if err != nil {
				// Keep whatever drafts already exist; an empty set is the
				// real failure.
				if len(candidates) == 0 {
					return Result{}, err
				}
				break
			}
			candidates = append(candidates, draft)
		}

		return Result{
			Action:  "sample",
			Content: candidates[0],
			Metadata: map[string]any{
				"candidates": len(candidates),
			},
			ContextUpdates: map[string]any{
				workflow.KeyCandidates: candidates,
			},
		}, nil
	})
}
