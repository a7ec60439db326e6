package reasoning

import (
	"context"
	"strings"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
)

// finalPlainCall implements the "on step exhaustion" rule every strategy
// shares (spec §4.F point v): make one plain, optionally streamed, LLM
// call and use its text as the final answer.
func finalPlainCall(ctx context.Context, d *Deps, in Input, messages []llms.Message) (string, error) {
	if in.Streaming && d.Stream != nil {
		var ch <-chan llms.StreamChunk
		var err error
		if len(in.DataSources) > 0 {
			ch, err = d.Stream.StreamWithRAG(ctx, in.Model, messages, in.DataSources)
		} else {
			ch, err = d.Stream.StreamPlain(ctx, in.Model, messages)
		}
		if err != nil {
			return "", err
		}
		return collectStreamedText(ctx, d.sink(), ch)
	}

	if len(in.DataSources) > 0 {
		resp, err := d.Caller.CallWithRAG(ctx, in.Model, messages)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	resp, err := d.Caller.CallPlain(ctx, in.Model, messages)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// collectStreamedText drains a text-only stream, emitting token_stream
// events as chunks arrive, and returns the concatenated text.
func collectStreamedText(ctx context.Context, sink events.Sink, ch <-chan llms.StreamChunk) (string, error) {
	var text strings.Builder
	first := true
	for chunk := range ch {
		switch chunk.Type {
		case "text":
			emit(ctx, sink, events.TypeTokenStream, events.TokenStreamPayload{Token: chunk.Text, IsFirst: first})
			first = false
			text.WriteString(chunk.Text)
		case "done":
			if text.Len() == 0 && chunk.Final != nil {
				text.WriteString(chunk.Final.Content)
			}
			emit(ctx, sink, events.TypeTokenStream, events.TokenStreamPayload{IsLast: true, IsFirst: first})
		case "error":
			return "", chunk.Err
		}
	}
	return text.String(), nil
}

// streamToolStep drives a tool-capable stream, forwarding text tokens
// until the first tool-call fragment arrives (spec §4.F "agentic":
// "upon discovering tool calls in the response, stop streaming text and
// proceed to execution"), and returns the terminal LLMResponse.
func streamToolStep(ctx context.Context, sink events.Sink, ch <-chan llms.StreamChunk) (llms.LLMResponse, error) {
	var text strings.Builder
	var final llms.LLMResponse
	sawToolCall := false
	first := true

	for chunk := range ch {
		switch chunk.Type {
		case "text":
			if sawToolCall {
				continue
			}
			emit(ctx, sink, events.TypeTokenStream, events.TokenStreamPayload{Token: chunk.Text, IsFirst: first})
			first = false
			text.WriteString(chunk.Text)
		case "tool_call_delta":
			sawToolCall = true
		case "done":
			if chunk.Final != nil {
				final = *chunk.Final
			}
		case "error":
			return llms.LLMResponse{}, chunk.Err
		}
	}
	if !sawToolCall {
		emit(ctx, sink, events.TypeTokenStream, events.TokenStreamPayload{IsLast: true})
	}
	if final.Content == "" && text.Len() > 0 {
		final.Content = text.String()
	}
	return final, nil
}

// nonFinishedCalls filters the reserved "finished" pseudo-tool out of a
// response's requested tool calls.
func nonFinishedCalls(calls []llms.ToolCall) []llms.ToolCall {
	out := make([]llms.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Name != "finished" {
			out = append(out, c)
		}
	}
	return out
}

func findCall(calls []llms.ToolCall, name string) (llms.ToolCall, bool) {
	for _, c := range calls {
		if c.Name == name {
			return c, true
		}
	}
	return llms.ToolCall{}, false
}
