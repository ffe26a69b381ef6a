package agents

import (
	"context"
	"strings"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// Transformer rewrites the best available content into a target format.
// Settings: toFormat ∈ {csv, json, markdown, text} (default text).
// Writes transformed_content.
func Transformer() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		format := strings.ToLower(settingString(inv.Settings, "toFormat", "text"))

		var instruction string
		switch format {
		case "csv":
			instruction = "Convert the content into CSV. First line is the header. " +
				"Use commas as separators, quote fields containing commas, one record per line. " +
				"Output the CSV only, no prose, no code fences."
		case "json":
			instruction = "Convert the content into a single well-formed JSON value. " +
				"Output the JSON only, no prose, no code fences."
		case "markdown":
			instruction = "Rewrite the content as clean Markdown with headings and lists where natural. " +
				"Output the Markdown only."
		default:
			instruction = "Rewrite the content as clean plain text."
		}

		source := bestContent(inv)
		out, err := chat(ctx, inv, instruction, source, llm.ChatOptions{Temperature: 0.2})
		if err != nil {
			return Result{}, err
		}
		out = stripFences(out)

		return Result{
			Action:  "transform",
			Content: out,
			Metadata: map[string]any{
				"format": format,
			},
			ContextUpdates: map[string]any{
				workflow.KeyTransformedContent: out,
			},
		}, nil
	})
}

// stripFences removes a surrounding markdown code fence if the model added
// one despite instructions.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		// drop a language tag on the opening fence
		if !strings.ContainsAny(t[:i], " \t,") {
			t = t[i+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
