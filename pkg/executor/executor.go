// Package executor implements the Tool Executor (spec §4.C): prepares,
// approves, dispatches, and normalizes one tool invocation end to end.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/agentcore/internal/toolindex"
	"github.com/flowforge/agentcore/pkg/approval"
	"github.com/flowforge/agentcore/pkg/config"
	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/mcp"
	"github.com/flowforge/agentcore/pkg/session"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

// Manager is the subset of *mcp.Manager the executor depends on,
// narrowed to an interface so tests can substitute a fake connection
// manager without standing up real transports.
type Manager interface {
	CallTool(ctx context.Context, userEmail, serverName, toolName string, args map[string]interface{}, toolCallID string, progress mcp.ProgressSink) (*mcp.ToolCallResult, error)
	Servers() []*mcp.ServerRecord
}

// Executor runs one ToolCall to completion: argument preparation,
// approval, dispatch through the Connection Manager, and result
// normalization (spec §4.C "Contract"/"Steps").
type Executor struct {
	Manager  Manager
	Index    *toolindex.Index
	Broker   *approval.Broker
	Policy   config.ApprovalPolicyConfig
	Timeouts config.TimeoutConfig
	Sink     events.Sink
}

// New builds an Executor. index may be shared with other components
// (the Connection Manager doesn't own it; see internal/toolindex).
func New(manager Manager, index *toolindex.Index, broker *approval.Broker, policy config.ApprovalPolicyConfig, timeouts config.TimeoutConfig, sink events.Sink) *Executor {
	timeouts.SetDefaults()
	if sink == nil {
		sink = events.NopSink
	}
	return &Executor{Manager: manager, Index: index, Broker: broker, Policy: policy, Timeouts: timeouts, Sink: sink}
}

// Execute runs call end to end and returns the ToolResult the caller
// appends as one tool-role message. skipApproval is the caller's
// already-resolved "user has auto-approval on" signal; an admin-forced
// approval policy still overrides it (spec §4.C step 5).
func (e *Executor) Execute(ctx context.Context, call llms.ToolCall, sessCtx session.Context, skipApproval bool) toolresult.ToolResult {
	e.Index.Refresh(e.Manager.Servers())
	entry, found := e.Index.Lookup(call.Name)

	serverName, toolName := "", call.Name
	var schema *jsonSchema
	if found {
		serverName = entry.ServerName
		toolName = entry.Tool.Name
		schema, _ = decodeSchema(entry.Tool.Schema)
	}

	args, parsedOK := parseArguments(call)
	if !parsedOK {
		slog.Warn("tool arguments could not be parsed, substituting {}", "tool_call_id", call.ID, "tool", call.Name)
	}

	executedArgs, displayArgs := e.prepare(args, schema, sessCtx)

	editNote := ""
	requireApproval := e.Policy.RequiresAdminApproval(serverName, toolName) || !skipApproval
	if requireApproval {
		decision, rejected, ok := e.awaitApproval(ctx, call, displayArgs)
		if !ok {
			return rejected
		}
		if decision.Arguments != nil && !argsEqual(decision.Arguments, displayArgs) {
			// The user edited the arguments: re-run steps 2-3 so
			// security-critical injections (username, _mcp_data) can't
			// be stripped by the edit (spec §4.C step 5).
			executedArgs, displayArgs = e.prepare(decision.Arguments, schema, sessCtx)
			editNote = fmt.Sprintf("Note: the user edited the tool arguments before execution. Arguments executed: %s\n\n", marshalForNote(executedArgs))
		}
	}

	e.Sink.Emit(ctx, events.Event{Type: events.TypeToolStart, Payload: events.ToolStartPayload{
		ToolCallID: call.ID, ToolName: call.Name, Args: displayArgs,
	}})

	if !found {
		return e.toolError(ctx, call, "unknown tool")
	}

	progress := &progressAdapter{sink: e.Sink, broker: e.Broker, toolCallID: call.ID, timeout: e.Timeouts.Elicitation}
	raw, err := e.Manager.CallTool(ctx, sessCtx.UserEmail, serverName, toolName, executedArgs, call.ID, progress)
	if err != nil {
		var authErr *mcp.AuthenticationRequiredError
		if errors.As(err, &authErr) {
			return e.authRequired(ctx, call, authErr)
		}
		return e.toolError(ctx, call, err.Error())
	}

	normalized := toolresult.Normalize(toRawResult(raw))
	result := normalized.ToResult(call.ID)
	if editNote != "" {
		result.Content = editNote + result.Content
	}

	e.Sink.Emit(ctx, events.Event{Type: events.TypeToolComplete, Payload: events.ToolCompletePayload{
		ToolCallID: call.ID, Success: result.Success, ArtifactCount: len(result.Artifacts),
	}})
	return result
}

// prepare runs spec §4.C steps 2-4 (inject context, filter to schema,
// sanitize for display) over a candidate argument set.
func (e *Executor) prepare(args map[string]interface{}, schema *jsonSchema, sessCtx session.Context) (executed, display map[string]interface{}) {
	work := cloneArgs(args)

	if schema == nil || schema.has("username") {
		work["username"] = sessCtx.UserEmail
	}
	if schema.has("_mcp_data") {
		work["_mcp_data"] = toolindex.Digest(e.Manager.Servers())
	}

	rewriteFilenames(work, sessCtx)

	filtered := filterToSchema(work, schema)
	display := cloneArgs(filtered)
	if _, ok := filtered["filename"]; ok {
		if orig, ok := work["original_filename"]; ok {
			display["original_filename"] = orig
		}
	}
	if _, ok := filtered["file_names"]; ok {
		if origs, ok := work["original_file_names"]; ok {
			display["original_file_names"] = origs
		}
	}
	return filtered, sanitizeForDisplay(display)
}

// awaitApproval implements spec §4.C step 5: emit the approval request,
// wait (bounded) for the broker to deliver a decision, and translate
// rejection/timeout into a terminal ToolResult. ok is false when the
// caller should return the accompanying ToolResult immediately.
func (e *Executor) awaitApproval(ctx context.Context, call llms.ToolCall, displayArgs map[string]interface{}) (approval.Decision, toolresult.ToolResult, bool) {
	e.Broker.CreateApproval(call.ID)
	defer e.Broker.CleanupApproval(call.ID)

	e.Sink.Emit(ctx, events.Event{Type: events.TypeToolApprovalRequest, Payload: events.ToolApprovalRequestPayload{
		ToolCallID: call.ID, ToolName: call.Name, Args: displayArgs, AllowEdit: true,
	}})

	actx, cancel := context.WithTimeout(ctx, e.Timeouts.Approval)
	defer cancel()

	decision, err := e.Broker.WaitApproval(actx, call.ID)
	if err != nil {
		return approval.Decision{}, e.toolError(ctx, call, "approval timed out"), false
	}
	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "rejected by user"
		}
		return approval.Decision{}, e.toolError(ctx, call, reason), false
	}
	return decision, toolresult.ToolResult{}, true
}

func (e *Executor) authRequired(ctx context.Context, call llms.ToolCall, authErr *mcp.AuthenticationRequiredError) toolresult.ToolResult {
	e.Sink.Emit(ctx, events.Event{Type: events.TypeAuthRequired, Payload: events.AuthRequiredPayload{
		ToolCallID: call.ID, ServerName: authErr.ServerName, AuthType: string(authErr.AuthType), OAuthStartURL: authErr.OAuthStartURL,
	}})
	meta := map[string]interface{}{
		"auth_required": true,
		"server_name":   authErr.ServerName,
		"auth_type":     string(authErr.AuthType),
	}
	if authErr.OAuthStartURL != "" {
		meta["oauth_start_url"] = authErr.OAuthStartURL
	}
	content, _ := json.Marshal(meta)
	return toolresult.ToolResult{
		ToolCallID: call.ID,
		Success:    false,
		Error:      "authentication required",
		Content:    string(content),
		MetaData:   meta,
	}
}

func (e *Executor) toolError(ctx context.Context, call llms.ToolCall, message string) toolresult.ToolResult {
	e.Sink.Emit(ctx, events.Event{Type: events.TypeToolError, Payload: events.ToolErrorPayload{
		ToolCallID: call.ID, Message: message,
	}})
	return toolresult.ErrorResult(call.ID, message)
}

// progressAdapter wires the Connection Manager's per-call ProgressSink
// to outbound tool_progress/tool_log events and, for elicitation, to
// the Approval Broker under a freshly minted elicitation id (spec §4.C
// step 7).
type progressAdapter struct {
	sink       events.Sink
	broker     *approval.Broker
	toolCallID string
	timeout    time.Duration
}

func (a *progressAdapter) OnProgress(progress float64, message string) {
	a.sink.Emit(context.Background(), events.Event{Type: events.TypeToolProgress, Payload: events.ToolProgressPayload{
		ToolCallID: a.toolCallID, Progress: progress, Message: message,
	}})
}

func (a *progressAdapter) OnLog(level, message string) {
	a.sink.Emit(context.Background(), events.Event{Type: events.TypeToolLog, Payload: events.ToolLogPayload{
		ToolCallID: a.toolCallID, Level: level, Message: message,
	}})
}

func (a *progressAdapter) OnElicit(ctx context.Context, message string, schema map[string]interface{}) (map[string]interface{}, error) {
	elicitationID := uuid.NewString()
	a.broker.CreateElicitation(elicitationID)
	defer a.broker.CleanupElicitation(elicitationID)

	a.sink.Emit(ctx, events.Event{Type: events.TypeElicitationRequest, Payload: events.ElicitationRequestPayload{
		ElicitationID: elicitationID, ToolCallID: a.toolCallID, Message: message, Schema: schema,
	}})

	wctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	reply, err := a.broker.WaitElicitation(wctx, elicitationID)
	if err != nil {
		return nil, fmt.Errorf("elicitation timed out: %w", err)
	}
	switch reply.Action {
	case approval.ElicitAccept:
		return reply.Data, nil
	case approval.ElicitReject:
		return nil, fmt.Errorf("elicitation rejected by user")
	default:
		return nil, fmt.Errorf("elicitation cancelled")
	}
}

func toRawResult(r *mcp.ToolCallResult) toolresult.RawResult {
	items := make([]toolresult.ContentItem, len(r.ContentItems))
	for i, it := range r.ContentItems {
		items[i] = toolresult.ContentItem{Type: it.Type, Text: it.Text, MimeType: it.MimeType, Data: it.Data}
	}
	return toolresult.RawResult{IsError: r.IsError, StructuredContent: r.StructuredContent, ContentItems: items, Text: r.Text}
}

func argsEqual(a, b map[string]interface{}) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func marshalForNote(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}
