package engine

import (
	"strings"

	"loom/internal/workflow"
)

// Output format tags carried on the Done event.
const (
	FormatText        = "text"
	FormatSpreadsheet = "spreadsheet"
)

// finalize selects the final answer and its format tag. Output nodes never
// call the model gateway; this is pure payload selection.
func (r *run) finalize() (string, string) {
	answer := r.selectAnswer()

	if r.spreadsheetActive() {
		content := r.cctx.GetString(workflow.KeyTransformedContent)
		if !looksLikeCSV(content) {
			content = coerceCSV(answer)
		}
		if looksLikeCSV(content) {
			return content, FormatSpreadsheet
		}
		return content, FormatText
	}
	return answer, FormatText
}

func (r *run) spreadsheetActive() bool {
	for _, n := range r.wf.Nodes {
		if n.Type == workflow.TypeSpreadsheet && r.state(n.ID) == workflow.StateExecuted {
			return true
		}
	}
	return false
}

// selectAnswer prefers, in order: final_answer, translated_content,
// transformed_content, the most recently executed synthesis/sampler/
// transformer step, then the user message.
func (r *run) selectAnswer() string {
	for _, key := range []string{
		workflow.KeyFinalAnswer,
		workflow.KeyTranslatedContent,
		workflow.KeyTransformedContent,
	} {
		if v := r.cctx.GetString(key); v != "" {
			return v
		}
	}
	if s := r.latestProducerStep(); s != "" {
		return s
	}
	return r.cctx.GetString(workflow.KeyUserMessage)
}

func (r *run) latestProducerStep() string {
	trace := r.traceSnapshot()
	for i := len(trace) - 1; i >= 0; i-- {
		step := trace[i]
		if step.Excluded || step.Error != "" || step.Content == "" {
			continue
		}
		node, ok := r.wf.NodeByID(step.NodeID)
		if !ok {
			continue
		}
		switch node.Type {
		case workflow.TypeSynthesis, workflow.TypeSampler, workflow.TypeTransformer:
			return step.Content
		}
	}
	return ""
}

// looksLikeCSV applies the shape heuristic: at least one newline, a comma on
// every non-empty line, and a dominant column count across lines.
func looksLikeCSV(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" || !strings.Contains(content, "\n") {
		return false
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return false
	}
	counts := map[int]int{}
	for _, line := range lines {
		if !strings.Contains(line, ",") {
			return false
		}
		counts[len(strings.Split(line, ","))]++
	}
	mode := 0
	for _, c := range counts {
		if c > mode {
			mode = c
		}
	}
	return float64(mode) >= 0.8*float64(len(lines))
}

// coerceCSV leaves CSV-shaped content alone and wraps anything else into a
// single-column table.
func coerceCSV(content string) string {
	if looksLikeCSV(content) {
		return content
	}
	escaped := strings.ReplaceAll(content, `"`, `""`)
	return "content\n\"" + escaped + "\""
}
