// Package reference provides one concrete, swappable LLMCaller (spec §6)
// wired to nothing but an injectable *http.Client. It speaks a
// chat-completions-shaped wire format — the lowest common denominator
// across the teacher's provider adapters (pkg/llms/openai.go,
// pkg/llms/ollama.go) — so tests can run it against a fake endpoint
// without a real provider key.
package reference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowforge/agentcore/pkg/config"
	"github.com/flowforge/agentcore/pkg/httpclient"
	"github.com/flowforge/agentcore/pkg/llms"
)

// Caller is a generic chat-completions LLMCaller. RAG variants defer to
// their plain counterparts: the Streaming Adapter (spec §4.G) has already
// folded retrieved context into the message list before it reaches here.
type Caller struct {
	model    string
	endpoint string
	apiKey   string
	headers  map[string]string
	http     *httpclient.Client
	counter  *llms.TokenCounter
}

// Option configures a Caller beyond its required model/endpoint/key.
type Option func(*Caller)

// WithHTTPClient overrides the underlying *http.Client, e.g. to point at
// an httptest.Server in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Caller) { c.http = httpclient.New(httpclient.WithHTTPClient(hc)) }
}

// WithExtraHeaders sets headers sent on every request, in addition to
// Authorization and Content-Type.
func WithExtraHeaders(headers map[string]string) Option {
	return func(c *Caller) { c.headers = headers }
}

// New builds a Caller for one configured model. apiKey is resolved by the
// caller (system key vault or per-user stored token, per cfg.KeySource)
// and passed in already-plaintext — Caller never persists it.
func New(cfg config.LLMModelConfig, apiKey string, opts ...Option) *Caller {
	c := &Caller{
		model:    cfg.Name,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   apiKey,
		headers:  cfg.ExtraHeaders,
		http:     httpclient.New(),
		counter:  llms.NewTokenCounter(cfg.Name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SupportsRequiredToolChoice reports true: the wire format always accepts
// tool_choice:"required" unchanged.
func (c *Caller) SupportsRequiredToolChoice() bool { return true }

func (c *Caller) CallPlain(ctx context.Context, model string, messages []llms.Message) (llms.LLMResponse, error) {
	return c.call(ctx, model, messages, nil, "", nil)
}

func (c *Caller) CallWithTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (llms.LLMResponse, error) {
	return c.call(ctx, model, messages, tools, choice, nil)
}

func (c *Caller) CallStructured(ctx context.Context, model string, messages []llms.Message, cfg llms.StructuredOutputConfig) (llms.LLMResponse, error) {
	return c.call(ctx, model, messages, nil, "", &cfg)
}

func (c *Caller) CallWithRAG(ctx context.Context, model string, messages []llms.Message) (llms.LLMResponse, error) {
	return c.CallPlain(ctx, model, messages)
}

func (c *Caller) CallWithRAGAndTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (llms.LLMResponse, error) {
	return c.CallWithTools(ctx, model, messages, tools, choice)
}

func (c *Caller) StreamPlain(ctx context.Context, model string, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	return c.stream(ctx, model, messages, nil, "")
}

func (c *Caller) StreamWithTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	return c.stream(ctx, model, messages, tools, choice)
}

func (c *Caller) StreamWithRAG(ctx context.Context, model string, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	return c.StreamPlain(ctx, model, messages)
}

func (c *Caller) StreamWithRAGAndTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	return c.StreamWithTools(ctx, model, messages, tools, choice)
}

// wire request/response shapes, deliberately the smallest common
// chat-completions subset (model, messages, tools, tool_choice, stream,
// response_format) — see pkg/llms/openai.go for the fuller provider-native
// shape this generalizes away from.

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	Tools          []wireTool    `json:"tools,omitempty"`
	ToolChoice     interface{}   `json:"tool_choice,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	ResponseFormat interface{}   `json:"response_format,omitempty"`
}

type wireChoice struct {
	Message wireMessage `json:"message"`
	Delta   wireMessage `json:"delta"`
}

type wireResponse struct {
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func toWireMessages(messages []llms.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out[i] = wm
	}
	return out
}

func toWireTools(tools []llms.ToolDefinition) []wireTool {
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out[i] = wt
	}
	return out
}

func toWireChoice(choice llms.ToolChoice) interface{} {
	switch choice {
	case llms.ToolChoiceRequired:
		return "required"
	case llms.ToolChoiceAuto:
		return "auto"
	default:
		return nil
	}
}

func fromWireToolCalls(calls []wireToolCall) []llms.ToolCall {
	out := make([]llms.ToolCall, len(calls))
	for i, tc := range calls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out[i] = llms.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args, RawArgs: tc.Function.Arguments}
	}
	return out
}

func (c *Caller) call(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice, structured *llms.StructuredOutputConfig) (llms.LLMResponse, error) {
	if model == "" {
		model = c.model
	}
	req := wireRequest{Model: model, Messages: toWireMessages(messages), Tools: toWireTools(tools), ToolChoice: toWireChoice(choice)}
	if structured != nil {
		req.ResponseFormat = map[string]interface{}{"type": "json_schema", "json_schema": structured.Schema}
	}

	body, err := c.do(ctx, req)
	if err != nil {
		return llms.LLMResponse{}, err
	}
	defer body.Close()

	var parsed wireResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return llms.LLMResponse{}, llms.NewCallError(llms.ErrUnexpected, "", fmt.Sprintf("decode response: %v", err), err)
	}
	if len(parsed.Choices) == 0 {
		return llms.LLMResponse{}, llms.NewCallError(llms.ErrUnexpected, "", "empty choices in response", nil)
	}
	msg := parsed.Choices[0].Message
	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = c.counter.CountMessages(messages) + c.counter.Count(msg.Content)
	}
	return llms.LLMResponse{
		Content:    msg.Content,
		ToolCalls:  fromWireToolCalls(msg.ToolCalls),
		ModelUsed:  parsed.Model,
		TokensUsed: tokens,
	}, nil
}

func (c *Caller) stream(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	if model == "" {
		model = c.model
	}
	req := wireRequest{Model: model, Messages: toWireMessages(messages), Tools: toWireTools(tools), ToolChoice: toWireChoice(choice), Stream: true}

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan llms.StreamChunk, 64)
	go func() {
		defer close(out)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var content strings.Builder
		toolCalls := map[int]*llms.ToolCall{}
		order := []int{}
		model := ""
		tokens := 0

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var chunk wireResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage.TotalTokens > 0 {
				tokens = chunk.Usage.TotalTokens
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				content.WriteString(delta.Content)
				select {
				case out <- llms.StreamChunk{Type: "text", Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for i, tc := range delta.ToolCalls {
				idx := i
				if _, seen := toolCalls[idx]; !seen {
					toolCalls[idx] = &llms.ToolCall{}
					order = append(order, idx)
				}
				d := &llms.ToolCallDelta{Index: idx, ID: tc.ID, NameDelta: tc.Function.Name, ArgumentsDelta: tc.Function.Arguments}
				if tc.ID != "" {
					toolCalls[idx].ID = tc.ID
				}
				toolCalls[idx].Name += tc.Function.Name
				toolCalls[idx].RawArgs += tc.Function.Arguments
				select {
				case out <- llms.StreamChunk{Type: "tool_call_delta", Delta: d}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- llms.StreamChunk{Type: "error", Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if tokens == 0 {
			tokens = c.counter.CountMessages(messages) + c.counter.Count(content.String())
		}
		final := llms.LLMResponse{Content: content.String(), ModelUsed: model, TokensUsed: tokens}
		for _, idx := range order {
			tc := toolCalls[idx]
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.RawArgs), &args)
			tc.Arguments = args
			final.ToolCalls = append(final.ToolCalls, *tc)
		}
		select {
		case out <- llms.StreamChunk{Type: "done", Final: &final}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (c *Caller) do(ctx context.Context, reqBody wireRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llms.NewCallError(llms.ErrUnexpected, "", fmt.Sprintf("marshal request: %v", err), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, llms.NewCallError(llms.ErrUnexpected, "", fmt.Sprintf("build request: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, llms.Classify("", err.Error(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, llms.Classify("", fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw)), nil)
	}
	return resp.Body, nil
}
