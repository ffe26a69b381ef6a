// Package engine drives a workflow run: dependency-ordered evaluation,
// branch-routing exclusion, context propagation, and the streaming progress
// protocol.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"loom/internal/agents"
	"loom/internal/imggen"
	"loom/internal/llm"
	"loom/internal/retriever"
	"loom/internal/workflow"
)

// Engine executes workflows. One Engine serves many concurrent runs; all
// per-run state lives in the run struct.
type Engine struct {
	Registry  *agents.Registry
	Gateway   llm.Gateway
	Retriever *retriever.Retriever
	Images    imggen.Generator

	// MaxParallel bounds concurrent node evaluation within one run. 1 (the
	// default) gives fully deterministic sequential replay.
	MaxParallel int
}

func New(registry *agents.Registry, gateway llm.Gateway, ret *retriever.Retriever, images imggen.Generator, maxParallel int) *Engine {
	return &Engine{
		Registry:    registry,
		Gateway:     gateway,
		Retriever:   ret,
		Images:      images,
		MaxParallel: maxParallel,
	}
}

func (e *Engine) maxParallel() int {
	if e.MaxParallel < 1 {
		return 1
	}
	if e.MaxParallel > 8 {
		return 8
	}
	return e.MaxParallel
}

// errRunAborted means the consumer is gone or the context was cancelled: stop
// scheduling, emit nothing further.
var errRunAborted = errors.New("engine: run aborted")

// fatalRunError terminates the run with an error event. Its message is
// engine-authored; upstream provider payloads never reach the stream.
type fatalRunError struct {
	msg string
}

func (e *fatalRunError) Error() string { return e.msg }

type run struct {
	eng    *Engine
	wf     workflow.Workflow
	plan   *workflow.Plan
	stream *Stream
	cctx   *Context
	id     uuid.UUID

	mu               sync.Mutex
	states           map[string]workflow.State
	trace            []Step
	selected         map[string]bool
	routingActive    bool
	routedDownstream map[string]bool
}

// Run executes the planned workflow and closes the stream when finished. The
// plan must come from workflow.BuildPlan for the same workflow.
func (e *Engine) Run(ctx context.Context, wf workflow.Workflow, plan *workflow.Plan, stream *Stream) {
	defer stream.Close()
	start := time.Now()

	r := &run{
		eng:              e,
		wf:               wf,
		plan:             plan,
		stream:           stream,
		cctx:             NewContext(),
		id:               uuid.New(),
		states:           make(map[string]workflow.State, len(wf.Nodes)),
		selected:         make(map[string]bool),
		routedDownstream: make(map[string]bool),
	}
	for _, n := range wf.Nodes {
		r.states[n.ID] = workflow.StatePending
	}
	if wf.UserMessage != "" {
		_ = r.cctx.Set(workflow.KeyUserMessage, wf.UserMessage)
	}

	log.Info().Str("run_id", r.id.String()).Int("nodes", len(wf.Nodes)).Msg("run started")

	if err := r.execute(ctx); err != nil {
		if errors.Is(err, errRunAborted) {
			log.Info().Str("run_id", r.id.String()).Msg("run cancelled")
			return
		}
		var fe *fatalRunError
		msg := "internal error"
		if errors.As(err, &fe) {
			msg = fe.msg
		}
		log.Error().Str("run_id", r.id.String()).Err(err).Msg("run failed")
		_ = stream.Emit(ctx, Event{Type: EventError, Message: msg})
		return
	}

	answer, format := r.finalize()
	toolOutputs, _ := r.cctx.Get(workflow.KeyToolOutputs)
	outputs, _ := toolOutputs.(map[string]any)

	done := DonePayload{
		Answer:       answer,
		ToolOutputs:  outputs,
		Trace:        r.traceSnapshot(),
		LatencyMS:    time.Since(start).Milliseconds(),
		OutputFormat: format,
	}
	if err := stream.Emit(ctx, Event{Type: EventDone, Done: &done}); err != nil {
		return
	}
	log.Info().Str("run_id", r.id.String()).Int64("latency_ms", done.LatencyMS).
		Int("steps", len(done.Trace)).Msg("run done")
}

func (r *run) execute(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return errRunAborted
		}
		inline, wave := r.nextReady()
		if len(inline) == 0 && len(wave) == 0 {
			break
		}
		for _, id := range inline {
			if ctx.Err() != nil {
				return errRunAborted
			}
			if err := r.processInline(ctx, id); err != nil {
				return err
			}
		}
		if len(wave) > 0 {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(r.eng.maxParallel())
			for _, id := range wave {
				id := id
				g.Go(func() error { return r.runAgent(gctx, id) })
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
	}

	// Whatever is still pending was unreachable or blocked: convert to
	// EXCLUDED before Done so no node finishes the run in PENDING.
	for _, id := range r.plan.Order {
		if r.state(id) == workflow.StatePending {
			r.exclude(id, "unreachable from workflow inputs")
		}
	}
	return nil
}

// nextReady partitions the pending nodes whose predecessors are all terminal:
// engine-direct work (inputs, outputs, exclusions) runs inline in topological
// order; runnable agent nodes form the concurrent wave.
func (r *run) nextReady() (inline []string, wave []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.plan.Order {
		if r.states[id] != workflow.StatePending {
			continue
		}
		ready := true
		for _, p := range r.plan.Predecessors[id] {
			if !r.states[p].Terminal() {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		node, _ := r.wf.NodeByID(id)
		if reason := r.exclusionReasonLocked(node); reason != "" {
			inline = append(inline, id)
			continue
		}
		switch node.Category() {
		case workflow.CategoryInput, workflow.CategoryOutput:
			inline = append(inline, id)
		default:
			wave = append(wave, id)
		}
	}
	return inline, wave
}

func (r *run) state(id string) workflow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[id]
}

func (r *run) setState(id string, s workflow.State) {
	r.mu.Lock()
	r.states[id] = s
	r.mu.Unlock()
}

func (r *run) appendStep(step Step) {
	r.mu.Lock()
	r.trace = append(r.trace, step)
	r.mu.Unlock()
}

func (r *run) traceSnapshot() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Step, len(r.trace))
	copy(out, r.trace)
	return out
}

// exclusionReasonLocked decides whether a ready node must be EXCLUDED.
// Callers hold r.mu.
func (r *run) exclusionReasonLocked(node workflow.Node) string {
	if node.Category() == workflow.CategoryInput {
		// An input-category predecessor never causes exclusion, and input
		// nodes themselves are never excluded.
		return ""
	}
	if !r.plan.Reachable[node.ID] {
		return "unreachable from workflow inputs"
	}
	var hasNonInputPred, anyExecuted bool
	for _, p := range r.plan.Predecessors[node.ID] {
		pred, _ := r.wf.NodeByID(p)
		if pred.Category() == workflow.CategoryInput {
			continue
		}
		hasNonInputPred = true
		if r.states[p] == workflow.StateExecuted {
			anyExecuted = true
		}
	}
	// Join ruling: proceed while at least one non-input predecessor actually
	// executed; exclude only when every upstream path is dead.
	if hasNonInputPred && !anyExecuted {
		return "all upstream paths excluded or failed"
	}
	if r.routingActive && node.Category() == workflow.CategoryTool &&
		r.routedDownstream[node.ID] && !r.selected[node.ID] {
		return "not selected for this run"
	}
	return ""
}

// exclude marks a node EXCLUDED without entering RUNNING. Excluded nodes
// produce a trace step with excluded=true but no events: start/complete
// events are reserved for nodes that actually run.
func (r *run) exclude(id, reason string) {
	node, _ := r.wf.NodeByID(id)
	r.setState(id, workflow.StateExcluded)
	r.appendStep(Step{
		NodeID:   id,
		Label:    node.Label,
		Action:   "excluded",
		Excluded: true,
		Metadata: map[string]any{"reason": reason},
	})
	log.Debug().Str("run_id", r.id.String()).Str("node", id).Str("reason", reason).Msg("node excluded")
}

func (r *run) processInline(ctx context.Context, id string) error {
	node, _ := r.wf.NodeByID(id)

	r.mu.Lock()
	reason := r.exclusionReasonLocked(node)
	r.mu.Unlock()
	if reason != "" {
		r.exclude(id, reason)
		return nil
	}

	switch node.Category() {
	case workflow.CategoryInput:
		r.processInput(node)
		r.setState(id, workflow.StateExecuted)
	case workflow.CategoryOutput:
		// Output nodes never call the gateway; their payload selection
		// happens once, at Done time.
		r.setState(id, workflow.StateExecuted)
	default:
		return r.runAgent(ctx, id)
	}
	return nil
}

// runAgent takes one agent- or tool-category node through
// RUNNING → (EXECUTED | ERROR), emitting agent_start and agent_complete.
func (r *run) runAgent(ctx context.Context, id string) error {
	node, _ := r.wf.NodeByID(id)
	r.setState(id, workflow.StateRunning)
	if err := r.stream.Emit(ctx, Event{Type: EventAgentStart, NodeID: id}); err != nil {
		return errRunAborted
	}

	modelClass := agents.ModelClassFor(node)
	inv := agents.Invocation{
		Node:          node,
		UserMessage:   r.cctx.GetString(workflow.KeyUserMessage),
		Context:       r.cctx.Snapshot(),
		Settings:      r.settingsFor(node),
		ModelClass:    modelClass,
		Gateway:       r.eng.Gateway,
		Retriever:     r.eng.Retriever,
		Images:        r.eng.Images,
		KnowledgeBase: r.wf.KnowledgeBase,
	}

	step := Step{
		NodeID: id,
		Label:  node.Label,
		Model:  string(modelClass),
	}

	handler, ok := r.eng.Registry.Lookup(node.Type)
	if !ok {
		return r.completeWithError(ctx, id, step, &agents.RecoverableError{Msg: "no handler registered for type " + string(node.Type)})
	}

	res, err := handler.Execute(ctx, inv)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errRunAborted
		}
		var fatal *agents.FatalError
		if errors.As(err, &fatal) {
			return &fatalRunError{msg: fatal.Msg}
		}
		return r.completeWithError(ctx, id, step, err)
	}

	if err := r.cctx.Merge(res.ContextUpdates); err != nil {
		// Documented keys must hold their documented shapes; a violation
		// poisons every downstream agent.
		return &fatalRunError{msg: err.Error()}
	}
	r.noteRouting(id, res.ContextUpdates)

	step.Action = res.Action
	step.Content = res.Content
	step.Metadata = res.Metadata
	r.appendStep(step)
	r.setState(id, workflow.StateExecuted)
	if err := r.stream.Emit(ctx, Event{Type: EventAgentComplete, NodeID: id, Step: &step}); err != nil {
		return errRunAborted
	}
	return nil
}

// completeWithError records a recoverable failure: empty content, the error
// in metadata, state ERROR, and the run continues.
func (r *run) completeWithError(ctx context.Context, id string, step Step, err error) error {
	step.Content = ""
	step.Error = err.Error()
	step.Metadata = map[string]any{"error": err.Error()}
	r.appendStep(step)
	r.setState(id, workflow.StateError)
	log.Warn().Str("run_id", r.id.String()).Str("node", id).Err(err).Msg("agent failed, continuing")
	if emitErr := r.stream.Emit(ctx, Event{Type: EventAgentComplete, NodeID: id, Step: &step}); emitErr != nil {
		return errRunAborted
	}
	return nil
}

// settingsFor clones the node settings, injecting the selectable tool listing
// for orchestrator nodes.
func (r *run) settingsFor(node workflow.Node) map[string]any {
	settings := make(map[string]any, len(node.Settings)+1)
	for k, v := range node.Settings {
		settings[k] = v
	}
	if node.Type == workflow.TypeOrchestrator {
		var tools []agents.ToolChoice
		for _, n := range r.wf.Nodes {
			if n.Category() == workflow.CategoryTool {
				tools = append(tools, agents.ToolChoice{ID: n.ID, Type: string(n.Type), Label: n.Label})
			}
		}
		settings[agents.SettingAvailableTools] = tools
	}
	return settings
}

// noteRouting activates branch routing when a handler published
// selected_tools: every tool-category descendant of the publisher outside the
// set will be excluded at its scheduling point.
func (r *run) noteRouting(publisher string, updates map[string]any) {
	raw, ok := updates[workflow.KeySelectedTools]
	if !ok {
		return
	}
	ids, ok := raw.([]string)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routingActive = true
	r.selected = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.selected[id] = true
	}
	// flood descendants of the publisher
	stack := append([]string(nil), r.plan.Successors[publisher]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.routedDownstream[id] {
			continue
		}
		r.routedDownstream[id] = true
		stack = append(stack, r.plan.Successors[id]...)
	}
}
