package agents

import (
	"context"
	"fmt"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Translator translates the best available content. Settings: targetLanguage
// (default English). Writes translated_content.
func Translator() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		lang := settingString(inv.Settings, "targetLanguage", "English")

		system := fmt.Sprintf("Translate the content into %s. Preserve formatting and meaning. "+
			"Output the translation only.", lang)
		out, err := chat(ctx, inv, system, bestContent(inv), llm.ChatOptions{Temperature: 0.2})
		if err != nil {
			return Result{}, err
		}

		return Result{
			Action:  "translate",
			Content: out,
			Metadata: map[string]any{
				"target_language": lang,
			},
			ContextUpdates: map[string]any{
				workflow.KeyTranslatedContent: out,
			},
		}, nil
	})
}
