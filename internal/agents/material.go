package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loom/internal/llm"
	"loom/internal/retriever"
	"loom/internal/workflow"
)

// chat calls the gateway with the handler's model class, applying the engine's
// retry policy for transport errors and classifying what remains: credential
// problems are fatal, everything else is recoverable at the step level.
func chat(ctx context.Context, inv Invocation, system, user string, opts llm.ChatOptions) (string, error) {
	var out string
	err := llm.WithRetry(ctx, func() error {
		s, cerr := inv.Gateway.Chat(ctx, inv.ModelClass, llm.SystemUser(system, user), opts)
		out = s
		return cerr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		var ce *llm.ConfigurationError
		if errors.As(err, &ce) {
			return "", &FatalError{Msg: "model gateway misconfigured", Err: err}
		}
		return "", &RecoverableError{Msg: "model call failed", Err: err}
	}
	return out, nil
}

// sourceMaterial folds the interesting context keys into one prompt block so
// downstream agents see uploads, plans, retrieval hits and drafts uniformly.
func sourceMaterial(inv Invocation) string {
	var sb strings.Builder
	if up := contextString(inv.Context, workflow.KeyUploadedContent); up != "" {
		sb.WriteString("## Uploaded documents\n")
		sb.WriteString(up)
		sb.WriteString("\n\n")
	}
	if plan := contextString(inv.Context, workflow.KeySupervisorPlan); plan != "" {
		sb.WriteString("## Plan\n")
		sb.WriteString(plan)
		sb.WriteString("\n\n")
	}
	if hits := hitsFromContext(inv.Context); len(hits) > 0 {
		sb.WriteString("## Retrieved context\n")
		sb.WriteString(renderHits(hits))
		sb.WriteString("\n")
	}
	if cands := candidatesFromContext(inv.Context); len(cands) > 0 {
		sb.WriteString("## Candidate drafts\n")
		for i, c := range cands {
			fmt.Fprintf(&sb, "### Draft %d\n%s\n\n", i+1, c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// bestContent picks the text an agent should work on, preferring the most
// refined value present.
func bestContent(inv Invocation) string {
	for _, key := range []string{
		workflow.KeyFinalAnswer,
		workflow.KeyTranslatedContent,
		workflow.KeyTransformedContent,
		workflow.KeyUploadedContent,
	} {
		if v := contextString(inv.Context, key); v != "" {
			return v
		}
	}
	if hits := hitsFromContext(inv.Context); len(hits) > 0 {
		return renderHits(hits)
	}
	return inv.UserMessage
}

func hitsFromContext(ctxMap map[string]any) []retriever.Hit {
	switch v := ctxMap[workflow.KeySemanticResults].(type) {
	case []retriever.Hit:
		return v
	case nil:
		return nil
	default:
		return nil
	}
}

func candidatesFromContext(ctxMap map[string]any) []string {
	switch v := ctxMap[workflow.KeyCandidates].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func renderHits(hits []retriever.Hit) string {
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s (%s, score %.3f)\n%s\n", i+1, h.Title, h.Source, h.Score, h.Snippet)
	}
	return sb.String()
}
