package workflow

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ValidationKind names one class of graph invariant violation.
type ValidationKind string

const (
	UnknownNodeType   ValidationKind = "UnknownNodeType"
	DanglingEdge      ValidationKind = "DanglingEdge"
	Cycle             ValidationKind = "Cycle"
	NoReachableOutput ValidationKind = "NoReachableOutput" // warning only
)

// ValidationError is a fatal graph invariant violation raised before any
// event is streamed.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation: %s: %s", e.Kind, e.Detail)
}

// Plan is the validated execution order plus the adjacency maps the engine
// consumes. Plans for the same workflow are identical across runs.
type Plan struct {
	Order        []string
	Predecessors map[string][]string
	Successors   map[string][]string

	// Reachable marks nodes reachable from at least one input-category node.
	Reachable map[string]bool
}

// BuildPlan validates the workflow and computes a deterministic topological
// order (Kahn's algorithm, ties broken by node id ascending).
func BuildPlan(w Workflow) (*Plan, error) {
	byID := make(map[string]Node, len(w.Nodes))
	for _, n := range w.Nodes {
		if !KnownType(n.Type) {
			return nil, &ValidationError{Kind: UnknownNodeType, Detail: fmt.Sprintf("node %s has unknown type %q", n.ID, n.Type)}
		}
		byID[n.ID] = n
	}

	preds := make(map[string][]string, len(w.Nodes))
	succs := make(map[string][]string, len(w.Nodes))
	indegree := make(map[string]int, len(w.Nodes))
	for _, n := range w.Nodes {
		preds[n.ID] = nil
		succs[n.ID] = nil
		indegree[n.ID] = 0
	}
	for _, e := range w.Edges {
		if _, ok := byID[e.Source]; !ok {
			return nil, &ValidationError{Kind: DanglingEdge, Detail: fmt.Sprintf("edge references missing source %q", e.Source)}
		}
		if _, ok := byID[e.Target]; !ok {
			return nil, &ValidationError{Kind: DanglingEdge, Detail: fmt.Sprintf("edge references missing target %q", e.Target)}
		}
		if e.Source == e.Target {
			return nil, &ValidationError{Kind: Cycle, Detail: fmt.Sprintf("self-loop on node %q", e.Source)}
		}
		preds[e.Target] = append(preds[e.Target], e.Source)
		succs[e.Source] = append(succs[e.Source], e.Target)
		indegree[e.Target]++
	}
	for id := range preds {
		sort.Strings(preds[id])
		sort.Strings(succs[id])
	}

	// Kahn's algorithm over a sorted ready set keeps the order deterministic
	// for identical input.
	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(w.Nodes))
	remaining := make(map[string]int, len(indegree))
	for id, d := range indegree {
		remaining[id] = d
	}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range succs[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}
	if len(order) != len(w.Nodes) {
		var stuck []string
		for id, d := range remaining {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &ValidationError{Kind: Cycle, Detail: fmt.Sprintf("directed cycle involving %v", stuck)}
	}

	plan := &Plan{
		Order:        order,
		Predecessors: preds,
		Successors:   succs,
		Reachable:    reachableFromInputs(w, succs),
	}

	if !outputReachable(w, plan.Reachable) {
		log.Warn().Msg("no output node is reachable from any input node")
	}
	return plan, nil
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// reachableFromInputs floods the graph from every input-category node.
// Input nodes themselves count as reachable.
func reachableFromInputs(w Workflow, succs map[string][]string) map[string]bool {
	reach := make(map[string]bool, len(w.Nodes))
	var stack []string
	for _, n := range w.Nodes {
		if n.Category() == CategoryInput {
			stack = append(stack, n.ID)
		}
	}
	sort.Strings(stack)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reach[id] {
			continue
		}
		reach[id] = true
		stack = append(stack, succs[id]...)
	}
	return reach
}

func outputReachable(w Workflow, reach map[string]bool) bool {
	hasOutput := false
	for _, n := range w.Nodes {
		if n.Category() == CategoryOutput {
			hasOutput = true
			if reach[n.ID] {
				return true
			}
		}
	}
	// A graph without outputs is not warned about; the warning targets
	// outputs that exist but cannot be reached.
	return !hasOutput
}
