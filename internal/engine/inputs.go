package engine

import (
	"fmt"
	"strings"

	"loom/internal/documents"
	"loom/internal/workflow"
)

// processInput handles prompt and upload nodes directly; they never invoke a
// handler and never emit events.
func (r *run) processInput(node workflow.Node) {
	switch node.Type {
	case workflow.TypePrompt:
		// Last write wins when several prompt nodes are present.
		if text := strings.TrimSpace(node.PromptText); text != "" {
			_ = r.cctx.Set(workflow.KeyUserMessage, text)
		}
	case workflow.TypeUpload:
		r.processUpload(node)
	}
}

const uploadDelimiter = "\n\n"

func (r *run) processUpload(node workflow.Node) {
	var parts []string
	var notes []string
	for _, f := range node.UploadedFiles {
		text, note := documents.DecodeUpload(f)
		if note != "" {
			notes = append(notes, note)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- %s ---\n%s", f.Name, text))
		}
	}
	_ = r.cctx.Set(workflow.KeyUploadedContent, strings.Join(parts, uploadDelimiter))

	instruction := strings.TrimSpace(node.UploadInstruction)
	switch {
	case instruction != "":
		// Explicit uploader instruction overrides everything.
		_ = r.cctx.Set(workflow.KeyUserMessage, instruction)
		_ = r.cctx.Set(workflow.KeyUploadInstruction, instruction)
	case r.cctx.GetString(workflow.KeyUserMessage) == "":
		auto := autoInstruction(r.wf)
		_ = r.cctx.Set(workflow.KeyUserMessage, auto)
		_ = r.cctx.Set(workflow.KeyUploadInstruction, auto)
	}

	step := Step{
		NodeID:  node.ID,
		Label:   node.Label,
		Action:  "upload",
		Content: fmt.Sprintf("extracted %d of %d file(s)", len(parts), len(node.UploadedFiles)),
	}
	if len(notes) > 0 {
		step.Metadata = map[string]any{"notes": notes}
	}
	r.appendStep(step)
}

// autoInstruction derives the default uploader instruction from the graph
// shape: extraction when the workflow transforms or tabulates, summary
// otherwise.
func autoInstruction(wf workflow.Workflow) string {
	for _, n := range wf.Nodes {
		if n.Type == workflow.TypeTransformer || n.Type == workflow.TypeSpreadsheet {
			return "Extract the structured data from the uploaded documents."
		}
	}
	return "Summarize the uploaded documents."
}
