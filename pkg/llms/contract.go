package llms

import "context"

// LLMCaller is the narrow contract the agent core consumes from the
// provider layer. Implementations own provider routing, API key
// resolution, and retries; the core treats this as a black box that may
// return a *CallError or an *AuthenticationRequiredError.
//
// RAG variants accept pre-retrieved context already folded into the
// message list by the Streaming Adapter (spec §4.G); this contract does
// not itself talk to a retrieval backend.
type LLMCaller interface {
	CallPlain(ctx context.Context, model string, messages []Message) (LLMResponse, error)
	CallWithTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, choice ToolChoice) (LLMResponse, error)
	CallStructured(ctx context.Context, model string, messages []Message, cfg StructuredOutputConfig) (LLMResponse, error)

	// CallWithRAG and CallWithRAGAndTools take the same message list
	// shape as their plain counterparts — the Streaming Adapter (spec
	// §4.G) has already folded retrieved content into a system message
	// before the list reaches here, so these exist for contract
	// symmetry with spec §6's external interface rather than adding
	// behavior of their own.
	CallWithRAG(ctx context.Context, model string, messages []Message) (LLMResponse, error)
	CallWithRAGAndTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, choice ToolChoice) (LLMResponse, error)

	StreamPlain(ctx context.Context, model string, messages []Message) (<-chan StreamChunk, error)
	StreamWithTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, choice ToolChoice) (<-chan StreamChunk, error)
	StreamWithRAG(ctx context.Context, model string, messages []Message) (<-chan StreamChunk, error)
	StreamWithRAGAndTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, choice ToolChoice) (<-chan StreamChunk, error)
}

// SupportsRequiredToolChoice reports whether a caller is known to accept
// ToolChoiceRequired. Strategies that need a forced tool call (act,
// react's Act phase) probe this before falling back to ToolChoiceAuto, per
// spec §4.F.
type SupportsRequiredToolChoice interface {
	SupportsRequiredToolChoice() bool
}
