// Package streaming implements the Streaming Adapter (spec §4.G): it
// wraps the plain/tools/RAG/RAG+tools LLMCaller stream methods to
// produce a uniform sequence of text chunks followed by one terminal
// LLMResponse, folding retrieval context into the message list before
// the model is ever called.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/ragclient"
)

// yieldEvery is how many chunks the adapter forwards before giving the
// runtime a cooperative scheduling point (spec §4.G "cooperatively yield
// control... every ~50 chunks").
const yieldEvery = 50

// Adapter wraps one LLMCaller with retrieval pre-fetch and tool-call
// delta accumulation.
type Adapter struct {
	Caller llms.LLMCaller
	RAG    ragclient.RAGService
}

// New builds an Adapter. rag may be nil when no data sources are ever
// selected; Stream* with a non-empty sources list then fails loudly
// rather than silently skipping retrieval.
func New(caller llms.LLMCaller, rag ragclient.RAGService) *Adapter {
	return &Adapter{Caller: caller, RAG: rag}
}

// StreamPlain forwards text chunks from a plain streaming call, followed
// by the terminal LLMResponse.
func (a *Adapter) StreamPlain(ctx context.Context, model string, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	src, err := a.Caller.StreamPlain(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	return relay(ctx, src), nil
}

// StreamWithTools forwards text and tool-call-delta chunks, accumulating
// deltas by index so the terminal LLMResponse carries one complete
// ToolCall per index regardless of how many fragments the provider split
// it across.
func (a *Adapter) StreamWithTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	src, err := a.Caller.StreamWithTools(ctx, model, messages, tools, choice)
	if err != nil {
		return nil, err
	}
	return relay(ctx, src), nil
}

// StreamWithRAG queries every selected source before streaming begins,
// folds the retrieved content into the message list, and streams the
// resulting plain call. If exactly one source is selected and it returns
// a pre-formed completion, that text is emitted directly as a one-chunk
// "done" response without calling the model at all (spec §9 Open
// Questions: "single source may shortcut, multi-source always
// concatenates raw context").
func (a *Adapter) StreamWithRAG(ctx context.Context, model string, messages []llms.Message, sources []string) (<-chan llms.StreamChunk, error) {
	enriched, shortcut, err := a.enrich(ctx, messages, sources)
	if err != nil {
		return nil, err
	}
	if shortcut != nil {
		return shortcutChannel(*shortcut), nil
	}
	return a.StreamPlain(ctx, model, enriched)
}

// StreamWithRAGAndTools is StreamWithRAG's tool-capable counterpart.
func (a *Adapter) StreamWithRAGAndTools(ctx context.Context, model string, messages []llms.Message, sources []string, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	enriched, shortcut, err := a.enrich(ctx, messages, sources)
	if err != nil {
		return nil, err
	}
	if shortcut != nil {
		return shortcutChannel(*shortcut), nil
	}
	return a.StreamWithTools(ctx, model, enriched, tools, choice)
}

// enrich queries sources and returns either an enriched message list or
// (when a single source shortcuts) a pre-formed completion.
func (a *Adapter) enrich(ctx context.Context, messages []llms.Message, sources []string) ([]llms.Message, *llms.LLMResponse, error) {
	if len(sources) == 0 {
		return messages, nil, nil
	}
	if a.RAG == nil {
		return nil, nil, fmt.Errorf("streaming: no RAGService configured but data sources %v were selected", sources)
	}

	if len(sources) == 1 {
		res, err := a.RAG.QuerySource(ctx, sources[0], lastUserContent(messages))
		if err != nil {
			return nil, nil, fmt.Errorf("query source %q: %w", sources[0], err)
		}
		if res.PreformedCompletion != "" {
			return nil, &llms.LLMResponse{Content: res.PreformedCompletion}, nil
		}
		if res.Context == "" {
			return messages, nil, nil
		}
		return insertContext(messages, res.Context), nil, nil
	}

	var blocks []string
	query := lastUserContent(messages)
	for _, source := range sources {
		res, err := a.RAG.QuerySource(ctx, source, query)
		if err != nil {
			return nil, nil, fmt.Errorf("query source %q: %w", source, err)
		}
		if res.Context != "" {
			blocks = append(blocks, res.Context)
		}
	}
	if len(blocks) == 0 {
		return messages, nil, nil
	}
	return insertContext(messages, strings.Join(blocks, "\n\n")), nil, nil
}

// insertContext inserts a system message carrying retrieved content
// immediately before the last user message (spec §4.G).
func insertContext(messages []llms.Message, context string) []llms.Message {
	out := make([]llms.Message, 0, len(messages)+1)
	insertAt := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			insertAt = i
			break
		}
	}
	out = append(out, messages[:insertAt]...)
	out = append(out, llms.Message{Role: "system", Content: "Retrieved context:\n" + context})
	out = append(out, messages[insertAt:]...)
	return out
}

func lastUserContent(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// shortcutChannel wraps a pre-formed completion as a single "done" chunk,
// matching the shape every other Stream* method produces.
func shortcutChannel(resp llms.LLMResponse) <-chan llms.StreamChunk {
	out := make(chan llms.StreamChunk, 1)
	out <- llms.StreamChunk{Type: "done", Final: &resp}
	close(out)
	return out
}

// relay re-emits src's chunks, accumulating tool-call deltas by index and
// yielding cooperatively every yieldEvery chunks.
func relay(ctx context.Context, src <-chan llms.StreamChunk) <-chan llms.StreamChunk {
	out := make(chan llms.StreamChunk, 64)
	go func() {
		defer close(out)

		var text strings.Builder
		accum := map[int]*llms.ToolCall{}
		order := []int{}
		var final *llms.LLMResponse
		count := 0

		forward := func(chunk llms.StreamChunk) bool {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return false
			}
			count++
			if count%yieldEvery == 0 {
				select {
				case <-ctx.Done():
					return false
				default:
					runtime.Gosched()
				}
			}
			return true
		}

		for chunk := range src {
			switch chunk.Type {
			case "text":
				text.WriteString(chunk.Text)
				if !forward(chunk) {
					return
				}
			case "tool_call_delta":
				d := chunk.Delta
				if _, seen := accum[d.Index]; !seen {
					accum[d.Index] = &llms.ToolCall{}
					order = append(order, d.Index)
				}
				tc := accum[d.Index]
				if d.ID != "" {
					tc.ID = d.ID
				}
				tc.Name += d.NameDelta
				tc.RawArgs += d.ArgumentsDelta
				if !forward(chunk) {
					return
				}
			case "done":
				final = chunk.Final
			case "error":
				forward(chunk)
				return
			}
		}

		if final == nil {
			final = &llms.LLMResponse{Content: text.String()}
		} else if final.Content == "" {
			final.Content = text.String()
		}
		if len(final.ToolCalls) == 0 && len(order) > 0 {
			for _, idx := range order {
				tc := accum[idx]
				tc.Arguments = parseRawArgs(tc.RawArgs)
				final.ToolCalls = append(final.ToolCalls, *tc)
			}
		}

		select {
		case out <- llms.StreamChunk{Type: "done", Final: final}:
		case <-ctx.Done():
		}
	}()
	return out
}

func parseRawArgs(raw string) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
