package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/agentcore/pkg/config"
	"github.com/flowforge/agentcore/pkg/httpclient"
)

// defaultSSEResponseTimeout bounds how long the http/sse transport waits
// for a streamed response before giving up, matching
// pkg/tools/mcp.go's DefaultMCPSSEResponseTimeout.
const defaultSSEResponseTimeout = 5 * time.Minute

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authTokenCtxKey threads a caller-scoped bearer/api-key token through a
// single call without widening the client interface's signature; the
// connection manager sets it right before invoking callTool.
type authTokenCtxKey struct{}

func withAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenCtxKey{}, token)
}

func authTokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(authTokenCtxKey{}).(string)
	return v
}

// httpClient drives an MCP server over a plain JSON-RPC POST endpoint,
// transparently handling a text/event-stream response the same way
// streamable-http servers do. Grounded directly on
// pkg/tools/mcp.go's MCPToolSource.makeRequest.
type httpClient struct {
	url          string
	authType     config.AuthType
	apiKeyHeader string
	sseTimeout   time.Duration

	http *httpclient.Client

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPClient(cfg config.ServerConfig) *httpClient {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	return &httpClient{
		url:          cfg.URL,
		authType:     cfg.AuthType,
		apiKeyHeader: header,
		sseTimeout:   defaultSSEResponseTimeout,
		http:         httpclient.New(),
	}
}

func (c *httpClient) connect(ctx context.Context) error {
	req := mcpInitializeParams{}
	req.ClientInfo.Name = "agentcore"
	req.ClientInfo.Version = "0.1.0"
	req.ProtocolVersion = protocolVersion
	_, err := c.request(ctx, "initialize", req)
	return err
}

type mcpInitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (c *httpClient) listTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.request(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			InputSchema map[string]interface{} `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	out := make([]ToolDescriptor, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		out = append(out, ToolDescriptor{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
	}
	return out, nil
}

func (c *httpClient) listPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	result, err := c.request(ctx, "prompts/list", map[string]interface{}{})
	if err != nil {
		return nil, nil
	}
	var parsed struct {
		Prompts []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Arguments   []struct {
				Name string `json:"name"`
			} `json:"arguments"`
		} `json:"prompts"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, nil
	}
	out := make([]PromptDescriptor, 0, len(parsed.Prompts))
	for _, p := range parsed.Prompts {
		args := make([]string, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, a.Name)
		}
		out = append(out, PromptDescriptor{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}

func (c *httpClient) callTool(ctx context.Context, name string, args map[string]interface{}, sink ProgressSink) (*ToolCallResult, error) {
	params := map[string]interface{}{"name": name, "arguments": args}
	result, err := c.request(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		IsError           bool                   `json:"isError"`
		StructuredContent map[string]interface{} `json:"structuredContent"`
		Content           []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			MimeType string `json:"mimeType"`
			Data     string `json:"data"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	out := &ToolCallResult{IsError: parsed.IsError, StructuredContent: parsed.StructuredContent}
	for _, item := range parsed.Content {
		out.ContentItems = append(out.ContentItems, ContentItem{Type: item.Type, Text: item.Text, MimeType: item.MimeType, Data: item.Data})
	}
	return out, nil
}

func (c *httpClient) close() error { return nil }

// request performs one JSON-RPC call, transparently reading either a
// plain JSON body or a text/event-stream response.
func (c *httpClient) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.applyAuth(ctx, req)

	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp http request %q: %w", method, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		c.sessionMu.Lock()
		c.sessionID = sid
		c.sessionMu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mcp http %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp *rpcResponse
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = readSSEResponse(resp.Body, c.sseTimeout)
	} else {
		rpcResp = &rpcResponse{}
		err = json.NewDecoder(resp.Body).Decode(rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp read response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("mcp rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func (c *httpClient) applyAuth(ctx context.Context, req *http.Request) {
	token := authTokenFrom(ctx)
	if token == "" {
		return
	}
	switch c.authType {
	case config.AuthAPIKey:
		req.Header.Set(c.apiKeyHeader, token)
	case config.AuthBearer, config.AuthJWT, config.AuthOAuth:
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// readSSEResponse reads an event stream until the first complete
// JSON-RPC message arrives, matching pkg/tools/mcp.go's SSE loop.
func readSSEResponse(body io.ReadCloser, timeout time.Duration) (*rpcResponse, error) {
	type result struct {
		resp *rpcResponse
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer body.Close()
		reader := bufio.NewReader(body)
		var data strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				slog.Debug("mcp sse read error", "error", err)
				break
			}
			lineStr := strings.TrimSpace(string(line))
			if lineStr == "" {
				if data.Len() == 0 {
					continue
				}
				var resp rpcResponse
				if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
					resultChan <- result{resp: &resp}
					return
				}
				data.Reset()
				continue
			}
			if strings.HasPrefix(lineStr, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
			}
		}
		if data.Len() > 0 {
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
				resultChan <- result{resp: &resp}
				return
			}
		}
		resultChan <- result{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	if timeout == 0 {
		timeout = defaultSSEResponseTimeout
	}
	select {
	case res := <-resultChan:
		return res.resp, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout reading sse response after %v", timeout)
	}
}
