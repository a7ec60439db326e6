package reasoning

import (
	"context"

	"github.com/flowforge/agentcore/pkg/dispatch"
	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/observability"
	"github.com/flowforge/agentcore/pkg/session"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

// runTools executes calls through the Parallel Dispatcher and appends
// the resulting messages to messages in the causal order spec §5
// requires: the assistant turn with tool_calls, then one tool message
// per call in the same order as calls (regardless of completion order).
// obs may be nil; every Observability method is nil-safe.
func runTools(ctx context.Context, calls []llms.ToolCall, assistantContent string, exec ToolExecutor, sessCtx session.Context, skipApproval bool, sink events.Sink, obs *observability.Observability, messages []llms.Message) []llms.Message {
	messages = append(messages, llms.Message{Role: "assistant", Content: assistantContent, ToolCalls: calls})

	results := dispatch.Run(ctx, calls, func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error) {
		ctx, finish := obs.StartToolCall(ctx, call.Name)
		result := exec.Execute(ctx, call, sessCtx, skipApproval)
		finish(result.Success)
		return result, nil
	})

	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	emit(ctx, sink, events.TypeAgentToolResults, events.AgentToolResultsPayload{ToolCallIDs: ids})

	for _, r := range results {
		messages = append(messages, llms.Message{Role: "tool", Content: r.Content, ToolCallID: r.ToolCallID})
	}
	return messages
}
