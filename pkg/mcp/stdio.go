package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// protocolVersion is the MCP wire-protocol version this client advertises
// during initialize, matching the SDK's own reference clients.
const protocolVersion = "2024-11-05"

// stdioClient drives a child-process MCP server over stdio using the
// real mark3labs/mcp-go SDK, grounded on
// pkg/tool/mcptoolset/mcptoolset.go's connectStdio/callStdio path.
type stdioClient struct {
	command string
	args    []string
	env     []string

	mcpClient *client.Client
}

func newStdioClient(command string, args []string, env map[string]string) *stdioClient {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, v))
	}
	return &stdioClient{command: command, args: args, env: envSlice}
}

func (c *stdioClient) connect(ctx context.Context) error {
	cl, err := client.NewStdioMCPClient(c.command, c.env, c.args...)
	if err != nil {
		return fmt.Errorf("start stdio mcp client: %w", err)
	}
	if err := cl.Start(ctx); err != nil {
		return fmt.Errorf("start stdio transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentcore", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := cl.Initialize(ctx, initReq); err != nil {
		_ = cl.Close()
		return fmt.Errorf("initialize stdio mcp session: %w", err)
	}

	c.mcpClient = cl
	return nil
}

func (c *stdioClient) listTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Schema:      convertSchema(t.InputSchema),
		})
	}
	return out, nil
}

func (c *stdioClient) listPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	resp, err := c.mcpClient.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		// Not every server implements prompts; treat as empty rather than fatal.
		return nil, nil
	}
	out := make([]PromptDescriptor, 0, len(resp.Prompts))
	for _, p := range resp.Prompts {
		args := make([]string, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, a.Name)
		}
		out = append(out, PromptDescriptor{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}

func (c *stdioClient) callTool(ctx context.Context, name string, args map[string]interface{}, sink ProgressSink) (*ToolCallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return parseCallResult(result), nil
}

func (c *stdioClient) close() error {
	if c.mcpClient == nil {
		return nil
	}
	return c.mcpClient.Close()
}

// parseCallResult flattens an SDK CallToolResult into the transport-
// agnostic ToolCallResult the normalizer consumes.
func parseCallResult(result *mcp.CallToolResult) *ToolCallResult {
	out := &ToolCallResult{IsError: result.IsError}

	if result.StructuredContent != nil {
		if m, ok := result.StructuredContent.(map[string]interface{}); ok {
			out.StructuredContent = m
		} else if b, err := json.Marshal(result.StructuredContent); err == nil {
			var m map[string]interface{}
			if json.Unmarshal(b, &m) == nil {
				out.StructuredContent = m
			}
		}
	}

	for _, item := range result.Content {
		switch v := item.(type) {
		case mcp.TextContent:
			out.ContentItems = append(out.ContentItems, ContentItem{Type: "text", Text: v.Text})
		case mcp.ImageContent:
			out.ContentItems = append(out.ContentItems, ContentItem{Type: "image", MimeType: v.MIMEType, Data: v.Data})
		}
	}

	if out.StructuredContent == nil && len(out.ContentItems) == 0 {
		out.Text = ""
	}

	return out
}

// convertSchema normalizes the SDK's typed ToolInputSchema into a plain
// map via a marshal/unmarshal roundtrip, matching
// pkg/tool/mcptoolset/mcptoolset.go's convertSchema helper.
func convertSchema(schema mcp.ToolInputSchema) map[string]interface{} {
	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
