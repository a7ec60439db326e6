package mcp

import (
	"context"
	"fmt"
)

// ProgressSink receives progress notifications during one call_tool
// invocation (spec §4.A "callback routing table"). Log notifications are
// delivered the same way with level set. OnElicit routes a server-
// originated elicitation request (spec §4.C step 7) to whatever is
// waiting on the far side; no transport here originates one yet (see
// DESIGN.md), but the seam is exercised end-to-end by the Tool Executor.
type ProgressSink interface {
	OnProgress(progress float64, message string)
	OnLog(level, message string)
	OnElicit(ctx context.Context, message string, schema map[string]interface{}) (map[string]interface{}, error)
}

// NopProgressSink discards every notification and refuses elicitation.
type NopProgressSink struct{}

func (NopProgressSink) OnProgress(float64, string) {}
func (NopProgressSink) OnLog(string, string)        {}
func (NopProgressSink) OnElicit(context.Context, string, map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("elicitation not supported by this transport")
}

// ToolCallResult is the raw result of one tool invocation, before the
// Tool Result Normalizer (pkg/toolresult) gets to it.
type ToolCallResult struct {
	IsError bool
	// StructuredContent is the parsed structured_content field, when the
	// server returned one.
	StructuredContent map[string]interface{}
	// ContentItems is the raw content list (text/image/resource items),
	// present when the server used the content-list shape.
	ContentItems []ContentItem
	// Text is a free-form fallback when neither of the above applied.
	Text string
}

// ContentItem is one entry of an MCP content list.
type ContentItem struct {
	Type     string // "text", "image", "resource"
	Text     string
	MimeType string
	Data     string // base64, for image/resource items
}

// client is the narrow per-transport contract the connection manager
// drives; stdioClient and httpClient (below) are its two implementations.
type client interface {
	connect(ctx context.Context) error
	listTools(ctx context.Context) ([]ToolDescriptor, error)
	listPrompts(ctx context.Context) ([]PromptDescriptor, error)
	callTool(ctx context.Context, name string, args map[string]interface{}, sink ProgressSink) (*ToolCallResult, error)
	close() error
}
