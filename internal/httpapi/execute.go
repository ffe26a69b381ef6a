package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"loom/internal/documents"
	"loom/internal/engine"
	"loom/internal/observability"
	"loom/internal/workflow"
)

// Wire shapes of the execute request (§ visual editor export format).
type executeRequest struct {
	Message       string     `json:"message"`
	WorkflowNodes []wireNode `json:"workflow_nodes"`
	WorkflowEdges []wireEdge `json:"workflow_edges"`
	KnowledgeBase string     `json:"knowledge_base"`
}

type wireNode struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position map[string]any `json:"position"`
	Data     wireNodeData   `json:"data"`
}

type wireNodeData struct {
	NodeType          string                   `json:"nodeType"`
	Label             string                   `json:"label"`
	Settings          map[string]any           `json:"settings"`
	PromptText        string                   `json:"promptText"`
	UploadedFiles     []documents.UploadedFile `json:"uploadedFiles"`
	UploadInstruction string                   `json:"uploadInstruction"`
}

type wireEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (req executeRequest) toWorkflow() workflow.Workflow {
	wf := workflow.Workflow{
		UserMessage:   strings.TrimSpace(req.Message),
		KnowledgeBase: strings.TrimSpace(req.KnowledgeBase),
	}
	for _, n := range req.WorkflowNodes {
		nodeType := n.Data.NodeType
		if nodeType == "" {
			nodeType = n.Type
		}
		wf.Nodes = append(wf.Nodes, workflow.Node{
			ID:                n.ID,
			Type:              workflow.NodeType(nodeType),
			Label:             n.Data.Label,
			Settings:          n.Data.Settings,
			PromptText:        n.Data.PromptText,
			UploadedFiles:     n.Data.UploadedFiles,
			UploadInstruction: n.Data.UploadInstruction,
		})
	}
	for _, e := range req.WorkflowEdges {
		wf.Edges = append(wf.Edges, workflow.Edge{Source: e.Source, Target: e.Target})
	}
	return wf
}

// handleExecute validates the workflow, then streams progress as server-sent
// events. Validation failures return a plain 400 before the stream opens; any
// later engine failure arrives as an error event on the open stream.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf := req.toWorkflow()
	plan, err := workflow.BuildPlan(wf)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if wf.KnowledgeBase != "" && !s.library.Has(wf.KnowledgeBase) {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown knowledge base %q", wf.KnowledgeBase))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	stream := engine.NewStream()
	go s.engine.Run(ctx, wf, plan, stream)

	for ev := range stream.Events() {
		tag, payload := encodeEvent(ev)
		if payload == nil {
			continue
		}
		if err := writeSSE(w, flusher, tag, payload); err != nil {
			// consumer is gone; the engine notices via ctx at its next
			// scheduling point
			cancel()
			for range stream.Events() {
			}
			return
		}
	}
}

// encodeEvent maps an engine event onto its SSE tag and JSON payload.
func encodeEvent(ev engine.Event) (string, any) {
	switch ev.Type {
	case engine.EventAgentStart:
		return "agent_start", map[string]string{"node_id": ev.NodeID}
	case engine.EventAgentComplete:
		return "agent_complete", ev.Step
	case engine.EventDone:
		return "done", ev.Done
	case engine.EventError:
		return "error", map[string]string{"error": ev.Message}
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("unknown event type dropped")
		return "", nil
	}
}

// writeSSE emits one event frame: tag line, data line(s), blank separator.
// Payloads pass through the credential redactor; step metadata can carry
// provider error strings.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, tag string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data = observability.RedactJSON(data)
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", tag, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
