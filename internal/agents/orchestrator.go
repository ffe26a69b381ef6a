package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"loom/internal/llm"
	"loom/internal/workflow"
)

// SettingAvailableTools is injected by the engine: the tool-category nodes the
// orchestrator may route to, as []ToolChoice.
const SettingAvailableTools = "available_tools"

// ToolChoice describes one selectable tool node.
type ToolChoice struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Orchestrator inspects the tools present in the graph and publishes
// selected_tools, the branch-routing set consumed by the exclusion policy.
// When the model's reply cannot be parsed, every tool stays selected: routing
// degrades to a no-op instead of pruning blindly.
func Orchestrator() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		tools := toolChoices(inv.Settings)
		if len(tools) == 0 {
			return Result{
				Action:  "route",
				Content: "no tools available to route",
				ContextUpdates: map[string]any{
					workflow.KeySelectedTools: []string{},
				},
			}, nil
		}

		var listing strings.Builder
		for _, t := range tools {
			fmt.Fprintf(&listing, "- %s (%s): %s\n", t.ID, t.Type, t.Label)
		}
		system := "You route a request to the tools that are actually needed. " +
			"Reply with a JSON array of tool ids, nothing else. " +
			`Example: ["search1","image1"]. An empty array means no tool is needed.`
		user := fmt.Sprintf("Request: %s\n\nAvailable tools:\n%s", inv.UserMessage, listing.String())

		out, err := chat(ctx, inv, system, user, llm.ChatOptions{})
		if err != nil {
			return Result{}, err
		}

		selected, ok := parseToolSelection(out, tools)
		if !ok {
			log.Debug().Str("raw", out).Msg("orchestrator reply unparseable, selecting all tools")
			selected = make([]string, 0, len(tools))
			for _, t := range tools {
				selected = append(selected, t.ID)
			}
		}
		sort.Strings(selected)

		return Result{
			Action:  "route",
			Content: fmt.Sprintf("selected tools: %s", strings.Join(selected, ", ")),
			Metadata: map[string]any{
				"selected_tools": selected,
			},
			ContextUpdates: map[string]any{
				workflow.KeySelectedTools: selected,
			},
		}, nil
	})
}

func toolChoices(settings map[string]any) []ToolChoice {
	switch v := settings[SettingAvailableTools].(type) {
	case []ToolChoice:
		return v
	case []any:
		out := make([]ToolChoice, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, ToolChoice{
					ID:    settingString(m, "id", ""),
					Type:  settingString(m, "type", ""),
					Label: settingString(m, "label", ""),
				})
			}
		}
		return out
	}
	return nil
}

// parseToolSelection accepts a JSON array of ids, possibly fenced or wrapped
// in prose, and filters it to known tool ids. ok is false when no JSON array
// could be recovered at all.
func parseToolSelection(raw string, tools []ToolChoice) ([]string, bool) {
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.ID] = true
	}

	candidate := raw
	if start := strings.Index(candidate, "["); start >= 0 {
		if end := strings.LastIndex(candidate, "]"); end > start {
			candidate = candidate[start : end+1]
		}
	}
	var ids []string
	if err := json.Unmarshal([]byte(candidate), &ids); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if known[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, true
}
