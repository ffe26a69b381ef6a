package workflow

import (
	"errors"
	"reflect"
	"testing"
)

func node(id string, t NodeType) Node {
	return Node{ID: id, Type: t, Label: id}
}

func TestBuildPlanLinear(t *testing.T) {
	w := Workflow{
		Nodes: []Node{
			node("p1", TypePrompt),
			node("s1", TypeSemanticSearch),
			node("y1", TypeSynthesis),
			node("r1", TypeResponse),
		},
		Edges: []Edge{
			{Source: "p1", Target: "s1"},
			{Source: "s1", Target: "y1"},
			{Source: "y1", Target: "r1"},
		},
	}
	plan, err := BuildPlan(w)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"p1", "s1", "y1", "r1"}
	if !reflect.DeepEqual(plan.Order, want) {
		t.Fatalf("order = %v, want %v", plan.Order, want)
	}
	if !reflect.DeepEqual(plan.Predecessors["y1"], []string{"s1"}) {
		t.Fatalf("preds(y1) = %v", plan.Predecessors["y1"])
	}
	if !reflect.DeepEqual(plan.Successors["p1"], []string{"s1"}) {
		t.Fatalf("succs(p1) = %v", plan.Successors["p1"])
	}
	for _, id := range want {
		if !plan.Reachable[id] {
			t.Errorf("%s should be reachable", id)
		}
	}
}

func TestBuildPlanDeterministicTieBreak(t *testing.T) {
	w := Workflow{
		Nodes: []Node{
			node("p1", TypePrompt),
			node("b", TypeSynthesis),
			node("a", TypeSummarization),
			node("r1", TypeResponse),
		},
		Edges: []Edge{
			{Source: "p1", Target: "b"},
			{Source: "p1", Target: "a"},
			{Source: "b", Target: "r1"},
			{Source: "a", Target: "r1"},
		},
	}
	first, err := BuildPlan(w)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"p1", "a", "b", "r1"}
	if !reflect.DeepEqual(first.Order, want) {
		t.Fatalf("order = %v, want %v", first.Order, want)
	}
	for i := 0; i < 20; i++ {
		again, err := BuildPlan(w)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(again.Order, first.Order) {
			t.Fatalf("planner output must be identical across runs: %v vs %v", again.Order, first.Order)
		}
	}
}

func TestBuildPlanRejectsCycle(t *testing.T) {
	w := Workflow{
		Nodes: []Node{node("A", TypeSynthesis), node("B", TypeSynthesis)},
		Edges: []Edge{{Source: "A", Target: "B"}, {Source: "B", Target: "A"}},
	}
	_, err := BuildPlan(w)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != Cycle {
		t.Fatalf("expected Cycle, got %s", verr.Kind)
	}
}

func TestBuildPlanRejectsSelfLoop(t *testing.T) {
	w := Workflow{
		Nodes: []Node{node("A", TypeSynthesis)},
		Edges: []Edge{{Source: "A", Target: "A"}},
	}
	_, err := BuildPlan(w)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != Cycle {
		t.Fatalf("expected Cycle for self-loop, got %v", err)
	}
}

func TestBuildPlanRejectsDanglingEdge(t *testing.T) {
	w := Workflow{
		Nodes: []Node{node("A", TypeSynthesis)},
		Edges: []Edge{{Source: "A", Target: "ghost"}},
	}
	_, err := BuildPlan(w)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != DanglingEdge {
		t.Fatalf("expected DanglingEdge, got %v", err)
	}
}

func TestBuildPlanRejectsUnknownType(t *testing.T) {
	w := Workflow{Nodes: []Node{{ID: "x", Type: NodeType("quantum")}}}
	_, err := BuildPlan(w)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != UnknownNodeType {
		t.Fatalf("expected UnknownNodeType, got %v", err)
	}
}

func TestBuildPlanUnreachableSubgraph(t *testing.T) {
	w := Workflow{
		Nodes: []Node{
			node("p1", TypePrompt),
			node("r1", TypeResponse),
			node("island", TypeSynthesis),
		},
		Edges: []Edge{{Source: "p1", Target: "r1"}},
	}
	plan, err := BuildPlan(w)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Reachable["island"] {
		t.Error("island node must not be reachable")
	}
	if !plan.Reachable["r1"] {
		t.Error("r1 must be reachable")
	}
}

func TestBuildPlanEmptyGraph(t *testing.T) {
	plan, err := BuildPlan(Workflow{})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Order) != 0 {
		t.Fatalf("empty graph should yield empty order, got %v", plan.Order)
	}
}

func TestCategories(t *testing.T) {
	if CategoryOf(TypePrompt) != CategoryInput || CategoryOf(TypeUpload) != CategoryInput {
		t.Error("prompt/upload are inputs")
	}
	if CategoryOf(TypeResponse) != CategoryOutput || CategoryOf(TypeSpreadsheet) != CategoryOutput {
		t.Error("response/spreadsheet are outputs")
	}
	for _, tool := range []NodeType{TypeSemanticSearch, TypeImageGenerator, TypeCode} {
		if CategoryOf(tool) != CategoryTool {
			t.Errorf("%s should be a tool", tool)
		}
	}
	if KnownType(NodeType("nope")) {
		t.Error("unknown type accepted")
	}
}
