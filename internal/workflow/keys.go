package workflow

// Documented context keys. Unknown keys are tolerated for forward
// compatibility but never referenced by the engine.
const (
	KeyUserMessage        = "user_message"
	KeyUploadedContent    = "uploaded_content"
	KeyUploadInstruction  = "upload_instruction"
	KeySupervisorPlan     = "supervisor_plan"
	KeySemanticResults    = "semantic_results"
	KeyCandidates         = "candidates"
	KeyFinalAnswer        = "final_answer"
	KeyTransformedContent = "transformed_content"
	KeyTranslatedContent  = "translated_content"
	KeyToolOutputs        = "tool_outputs"
	KeySelectedTools      = "selected_tools"
)
