package agents

import (
	"loom/internal/llm"
	"loom/internal/workflow"
)

// RegisterDefaults installs every built-in handler.
func RegisterDefaults(r *Registry) {
	r.Register(workflow.TypeSupervisor, Supervisor())
	r.Register(workflow.TypeOrchestrator, Orchestrator())
	r.Register(workflow.TypeSemanticSearch, SemanticSearch())
	r.Register(workflow.TypeSampler, Sampler())
	r.Register(workflow.TypeSynthesis, Synthesis())
	r.Register(workflow.TypeTransformer, Transformer())
	r.Register(workflow.TypeTranslator, Translator())
	r.Register(workflow.TypeSummarization, Summarization())
	r.Register(workflow.TypeFormatting, Formatting())
	r.Register(workflow.TypeCode, Code())
	r.Register(workflow.TypeImageGenerator, ImageGenerator())
}

// defaultModelClass is the per-type model tier used when node settings don't
// pick one. Routing and ranking run on the small model; generation on the
// large one.
var defaultModelClass = map[workflow.NodeType]llm.ModelClass{
	workflow.TypeSupervisor:     llm.ModelLarge,
	workflow.TypeOrchestrator:   llm.ModelSmall,
	workflow.TypeSemanticSearch: llm.ModelSmall,
	workflow.TypeSampler:        llm.ModelLarge,
	workflow.TypeSynthesis:      llm.ModelLarge,
	workflow.TypeTransformer:    llm.ModelLarge,
	workflow.TypeTranslator:     llm.ModelSmall,
	workflow.TypeSummarization:  llm.ModelSmall,
	workflow.TypeFormatting:     llm.ModelSmall,
	workflow.TypeCode:           llm.ModelLarge,
	workflow.TypeImageGenerator: llm.ModelSmall,
}

// ModelClassFor resolves the effective model class for a node: an explicit
// "modelClass" setting wins, then the type default, then large.
func ModelClassFor(node workflow.Node) llm.ModelClass {
	switch settingString(node.Settings, "modelClass", "") {
	case string(llm.ModelSmall):
		return llm.ModelSmall
	case string(llm.ModelLarge):
		return llm.ModelLarge
	}
	if c, ok := defaultModelClass[node.Type]; ok {
		return c
	}
	return llm.ModelLarge
}
