package agents

import (
	"context"
	"testing"

	"loom/internal/llm"
	"loom/internal/workflow"
)

type cannedGateway struct {
	reply string
	err   error
}

func (g *cannedGateway) Chat(ctx context.Context, class llm.ModelClass, msgs []llm.Message, opts llm.ChatOptions) (string, error) {
	return g.reply, g.err
}

func (g *cannedGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func orchestratorInvocation(gw llm.Gateway, tools []ToolChoice) Invocation {
	return Invocation{
		Node:        workflow.Node{ID: "o1", Type: workflow.TypeOrchestrator},
		UserMessage: "do the thing",
		Context:     map[string]any{},
		Settings:    map[string]any{SettingAvailableTools: tools},
		ModelClass:  llm.ModelSmall,
		Gateway:     gw,
	}
}

func TestOrchestratorParsesSelection(t *testing.T) {
	tools := []ToolChoice{{ID: "s1", Type: "semantic_search"}, {ID: "i1", Type: "image_generator"}}
	res, err := Orchestrator().Execute(context.Background(), orchestratorInvocation(&cannedGateway{reply: `["s1"]`}, tools))
	if err != nil {
		t.Fatal(err)
	}
	selected, ok := res.ContextUpdates[workflow.KeySelectedTools].([]string)
	if !ok || len(selected) != 1 || selected[0] != "s1" {
		t.Fatalf("selected = %v", res.ContextUpdates[workflow.KeySelectedTools])
	}
}

func TestOrchestratorToleratesProseAroundJSON(t *testing.T) {
	tools := []ToolChoice{{ID: "s1"}, {ID: "i1"}}
	gw := &cannedGateway{reply: "Sure! Based on the request I would use:\n```json\n[\"i1\"]\n```"}
	res, err := Orchestrator().Execute(context.Background(), orchestratorInvocation(gw, tools))
	if err != nil {
		t.Fatal(err)
	}
	selected := res.ContextUpdates[workflow.KeySelectedTools].([]string)
	if len(selected) != 1 || selected[0] != "i1" {
		t.Fatalf("selected = %v", selected)
	}
}

func TestOrchestratorFallsBackToAllTools(t *testing.T) {
	tools := []ToolChoice{{ID: "s1"}, {ID: "i1"}}
	res, err := Orchestrator().Execute(context.Background(), orchestratorInvocation(&cannedGateway{reply: "I cannot decide."}, tools))
	if err != nil {
		t.Fatal(err)
	}
	selected := res.ContextUpdates[workflow.KeySelectedTools].([]string)
	if len(selected) != 2 {
		t.Fatalf("parse failure must select all tools, got %v", selected)
	}
}

func TestOrchestratorFiltersUnknownIDs(t *testing.T) {
	tools := []ToolChoice{{ID: "s1"}}
	res, err := Orchestrator().Execute(context.Background(), orchestratorInvocation(&cannedGateway{reply: `["s1","ghost"]`}, tools))
	if err != nil {
		t.Fatal(err)
	}
	selected := res.ContextUpdates[workflow.KeySelectedTools].([]string)
	if len(selected) != 1 || selected[0] != "s1" {
		t.Fatalf("unknown ids must be dropped, got %v", selected)
	}
}

func TestOrchestratorEmptySelectionIsValid(t *testing.T) {
	tools := []ToolChoice{{ID: "s1"}}
	res, err := Orchestrator().Execute(context.Background(), orchestratorInvocation(&cannedGateway{reply: `[]`}, tools))
	if err != nil {
		t.Fatal(err)
	}
	selected := res.ContextUpdates[workflow.KeySelectedTools].([]string)
	if len(selected) != 0 {
		t.Fatalf("explicit empty selection must stay empty, got %v", selected)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":                         "plain",
		"```csv\na,b\n1,2\n```":         "a,b\n1,2",
		"```\ncontent\n```":             "content",
		"  ```json\n{\"a\":1}\n```  ":   `{"a":1}`,
		"no fences, just ``` backticks": "no fences, just ``` backticks",
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelClassFor(t *testing.T) {
	orch := workflow.Node{Type: workflow.TypeOrchestrator}
	if ModelClassFor(orch) != llm.ModelSmall {
		t.Error("orchestrator defaults to the small model")
	}
	synth := workflow.Node{Type: workflow.TypeSynthesis}
	if ModelClassFor(synth) != llm.ModelLarge {
		t.Error("synthesis defaults to the large model")
	}
	override := workflow.Node{Type: workflow.TypeSynthesis, Settings: map[string]any{"modelClass": "small"}}
	if ModelClassFor(override) != llm.ModelSmall {
		t.Error("explicit modelClass setting wins")
	}
}
