package engine

import (
	"testing"

	"loom/internal/retriever"
	"loom/internal/workflow"
)

func TestContextSetGetSnapshot(t *testing.T) {
	c := NewContext()
	if err := c.Set(workflow.KeyUserMessage, "hi"); err != nil {
		t.Fatal(err)
	}
	if got := c.GetString(workflow.KeyUserMessage); got != "hi" {
		t.Fatalf("got %q", got)
	}

	snap := c.Snapshot()
	if err := c.Set(workflow.KeyUserMessage, "changed"); err != nil {
		t.Fatal(err)
	}
	if snap[workflow.KeyUserMessage] != "hi" {
		t.Fatal("snapshot must not observe later writes")
	}
}

func TestContextValidatesDocumentedKeys(t *testing.T) {
	c := NewContext()
	if err := c.Set(workflow.KeyUserMessage, 42); err == nil {
		t.Fatal("user_message must reject non-strings")
	}
	if err := c.Set(workflow.KeySelectedTools, "s1"); err == nil {
		t.Fatal("selected_tools must reject non-slices")
	}
	if err := c.Set(workflow.KeySemanticResults, []retriever.Hit{{Title: "t"}}); err != nil {
		t.Fatalf("typed hits must be accepted: %v", err)
	}
	if err := c.Set("x-custom-key", struct{}{}); err != nil {
		t.Fatalf("unknown keys pass through: %v", err)
	}
}

func TestContextMergeToolOutputsAppends(t *testing.T) {
	c := NewContext()
	if err := c.Merge(map[string]any{
		workflow.KeyToolOutputs: map[string]any{"images": []string{"a"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.Merge(map[string]any{
		workflow.KeyToolOutputs: map[string]any{"images": []string{"b"}, "code": []string{"x"}},
	}); err != nil {
		t.Fatal(err)
	}

	v, _ := c.Get(workflow.KeyToolOutputs)
	outputs := v.(map[string]any)
	images := outputs["images"].([]string)
	if len(images) != 2 || images[0] != "a" || images[1] != "b" {
		t.Fatalf("images = %v", images)
	}
	if code := outputs["code"].([]string); len(code) != 1 {
		t.Fatalf("code = %v", code)
	}
}

func TestContextMergeOverwrites(t *testing.T) {
	c := NewContext()
	if err := c.Merge(map[string]any{workflow.KeyFinalAnswer: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Merge(map[string]any{workflow.KeyFinalAnswer: "second"}); err != nil {
		t.Fatal(err)
	}
	if got := c.GetString(workflow.KeyFinalAnswer); got != "second" {
		t.Fatalf("got %q, later writer wins", got)
	}
}

func TestLooksLikeCSV(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"a,b\n1,2", true},
		{"a,b\n1,2\n3,4", true},
		{"no commas here", false},
		{"one,line", false}, // no newline
		{"a,b\nplain line\n", false},
		{"", false},
	}
	for _, c := range cases {
		if got := looksLikeCSV(c.in); got != c.want {
			t.Errorf("looksLikeCSV(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCoerceCSV(t *testing.T) {
	csv := "a,b\n1,2"
	if got := coerceCSV(csv); got != csv {
		t.Fatalf("csv content must pass through, got %q", got)
	}
	got := coerceCSV(`say "hi"`)
	if got != "content\n\"say \"\"hi\"\"\"" {
		t.Fatalf("coerced = %q", got)
	}
}
