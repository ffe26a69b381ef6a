package agents

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Supervisor plans the run. Settings:
//   - planningStyle: free-form hint folded into the prompt ("concise", "detailed", ...)
//   - autoRAG: when true and a knowledge base is selected, a few retrieval
//     hits are pulled into the plan without needing a semantic_search node.
//
// Writes supervisor_plan.
func Supervisor() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		style := settingString(inv.Settings, "planningStyle", "concise")

		var ragBlock string
		if settingBool(inv.Settings, "autoRAG", false) && inv.KnowledgeBase != "" && inv.Retriever != nil {
			hits, err := inv.Retriever.Retrieve(ctx, inv.KnowledgeBase, inv.UserMessage, 3, false, 0)
			if err == nil && len(hits) > 0 {
				ragBlock = "Relevant knowledge-base material:\n" + renderHits(hits)
			}
		}

		system := fmt.Sprintf("You are a workflow supervisor. Produce a %s step-by-step plan "+
			"for handling the user's request. Reply with the plan only.", style)
		user := inv.UserMessage
		if material := sourceMaterial(inv); material != "" {
			user = user + "\n\n" + material
		}
		if ragBlock != "" {
			user = user + "\n\n" + ragBlock
		}

		plan, err := chat(ctx, inv, system, user, llm.ChatOptions{Temperature: 0.3})
		if err != nil {
			return Result{}, err
		}
		plan = strings.TrimSpace(plan)
		return Result{
			Action:  "plan",
			Content: plan,
			ContextUpdates: map[string]any{
				workflow.KeySupervisorPlan: plan,
			},
		}, nil
	})
}
