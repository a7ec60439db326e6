// Package events defines the typed events the agent core emits to the
// transport-supplied sink (spec §6). Inbound messages from the transport
// are not modelled here.
package events

import "context"

// Type enumerates every AgentEvent.type the core can emit.
type Type string

const (
	TypeAgentStart       Type = "agent_start"
	TypeAgentTurnStart   Type = "agent_turn_start"
	TypeAgentReason      Type = "agent_reason"
	TypeAgentObserve     Type = "agent_observe"
	TypeAgentToolResults Type = "agent_tool_results"
	TypeAgentRequestInput Type = "agent_request_input"
	TypeAgentCompletion  Type = "agent_completion"

	TypeToolApprovalRequest Type = "tool_approval_request"
	TypeAuthRequired        Type = "auth_required"

	TypeToolStart    Type = "tool_start"
	TypeToolProgress Type = "tool_progress"
	TypeToolComplete Type = "tool_complete"
	TypeToolError    Type = "tool_error"
	TypeToolLog      Type = "tool_log"

	TypeTokenStream Type = "token_stream"

	TypeElicitationRequest Type = "elicitation_request"
	TypeError              Type = "error"
)

// Event is one typed event flowing out to the transport. Payload is a
// JSON-serializable record whose shape depends on Type; components build
// payloads with the typed constructors below rather than raw maps so the
// shape stays consistent across call sites.
type Event struct {
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Sink receives events emitted during a turn. Implementations forward them
// to the outbound transport channel; the core never blocks meaningfully on
// Emit, so a slow sink should buffer internally.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards every event; useful as a default in tests and for
// callers that don't want streaming feedback.
var NopSink Sink = SinkFunc(func(context.Context, Event) {})

// AgentStartPayload accompanies TypeAgentStart.
type AgentStartPayload struct {
	Strategy string `json:"strategy"`
	MaxSteps int    `json:"max_steps"`
}

// AgentTurnStartPayload accompanies TypeAgentTurnStart.
type AgentTurnStartPayload struct {
	Step int `json:"step"`
}

// AgentReasonPayload accompanies TypeAgentReason.
type AgentReasonPayload struct {
	Text string `json:"text"`
}

// AgentObservePayload accompanies TypeAgentObserve.
type AgentObservePayload struct {
	Observation   string `json:"observation"`
	ShouldContinue bool  `json:"should_continue"`
}

// AgentToolResultsPayload accompanies TypeAgentToolResults, carrying
// enough for the outer system to ingest artifacts without re-deriving
// them from the raw tool results.
type AgentToolResultsPayload struct {
	ToolCallIDs []string `json:"tool_call_ids"`
}

// AgentRequestInputPayload accompanies TypeAgentRequestInput.
type AgentRequestInputPayload struct {
	Question string `json:"question"`
}

// AgentCompletionPayload accompanies TypeAgentCompletion.
type AgentCompletionPayload struct {
	FinalAnswer string `json:"final_answer"`
	Steps       int    `json:"steps"`
	Strategy    string `json:"strategy"`
}

// ToolApprovalRequestPayload accompanies TypeToolApprovalRequest.
type ToolApprovalRequestPayload struct {
	ToolCallID string                 `json:"tool_call_id"`
	ToolName   string                 `json:"tool_name"`
	Args       map[string]interface{} `json:"args"`
	AllowEdit  bool                   `json:"allow_edit"`
}

// AuthRequiredPayload accompanies TypeAuthRequired.
type AuthRequiredPayload struct {
	ToolCallID    string `json:"tool_call_id"`
	ServerName    string `json:"server_name"`
	AuthType      string `json:"auth_type"`
	OAuthStartURL string `json:"oauth_start_url,omitempty"`
}

// ToolStartPayload accompanies TypeToolStart.
type ToolStartPayload struct {
	ToolCallID string                 `json:"tool_call_id"`
	ToolName   string                 `json:"tool_name"`
	Args       map[string]interface{} `json:"args"`
}

// ToolProgressPayload accompanies TypeToolProgress.
type ToolProgressPayload struct {
	ToolCallID string  `json:"tool_call_id"`
	Progress   float64 `json:"progress"`
	Message    string  `json:"message,omitempty"`
}

// ToolCompletePayload accompanies TypeToolComplete.
type ToolCompletePayload struct {
	ToolCallID    string                 `json:"tool_call_id"`
	Success       bool                   `json:"success"`
	Output        map[string]interface{} `json:"output,omitempty"`
	ArtifactCount int                    `json:"artifact_count"`
}

// ToolErrorPayload accompanies TypeToolError.
type ToolErrorPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Message    string `json:"message"`
}

// ToolLogPayload accompanies TypeToolLog.
type ToolLogPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Level      string `json:"level"`
	Message    string `json:"message"`
}

// TokenStreamPayload accompanies TypeTokenStream.
type TokenStreamPayload struct {
	Token   string `json:"token"`
	IsFirst bool   `json:"is_first"`
	IsLast  bool   `json:"is_last"`
}

// ElicitationRequestPayload accompanies TypeElicitationRequest.
type ElicitationRequestPayload struct {
	ElicitationID string                 `json:"elicitation_id"`
	ToolCallID    string                 `json:"tool_call_id"`
	Message       string                 `json:"message"`
	Schema        map[string]interface{} `json:"schema,omitempty"`
}

// ErrorPayload accompanies TypeError.
type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}
