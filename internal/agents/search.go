package agents

import (
	"context"
	"fmt"

	"loom/internal/workflow"
)

// SemanticSearch retrieves relevance-ranked snippets for the user message.
// Settings: topK (default 5), rerank (default false), rerankK (default 2*topK).
// Writes semantic_results and mirrors the hits into tool_outputs.docs.
func SemanticSearch() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		if inv.KnowledgeBase == "" || inv.Retriever == nil {
			return Result{
				Action:  "search",
				Content: "",
				Metadata: map[string]any{
					"note": "no knowledge base selected",
				},
				ContextUpdates: map[string]any{
					workflow.KeySemanticResults: nil,
				},
			}, nil
		}

		topK := settingInt(inv.Settings, "topK", 5)
		rerank := settingBool(inv.Settings, "rerank", false)
		rerankK := settingInt(inv.Settings, "rerankK", topK*2)

		query := inv.UserMessage
		if q := settingString(inv.Settings, "query", ""); q != "" {
			query = q
		}

		hits, err := inv.Retriever.Retrieve(ctx, inv.KnowledgeBase, query, topK, rerank, rerankK)
		if err != nil {
			return Result{}, &RecoverableError{Msg: fmt.Sprintf("retrieval failed for corpus %s", inv.KnowledgeBase), Err: err}
		}

		return Result{
			Action:  "search",
			Content: renderHits(hits),
			Metadata: map[string]any{
				"hits": len(hits),
			},
			ContextUpdates: map[string]any{
				workflow.KeySemanticResults: hits,
				workflow.KeyToolOutputs: map[string]any{
					"docs": hits,
				},
			},
		}, nil
	})
}
