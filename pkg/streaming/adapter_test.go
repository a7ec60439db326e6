package streaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/ragclient"
)

// fakeCaller is a minimal llms.LLMCaller test double. Only the methods
// under test return anything meaningful; the rest panic if called.
type fakeCaller struct {
	plainChunks []llms.StreamChunk
	gotMessages []llms.Message
}

func (f *fakeCaller) CallPlain(context.Context, string, []llms.Message) (llms.LLMResponse, error) {
	panic("not used")
}
func (f *fakeCaller) CallWithTools(context.Context, string, []llms.Message, []llms.ToolDefinition, llms.ToolChoice) (llms.LLMResponse, error) {
	panic("not used")
}
func (f *fakeCaller) CallStructured(context.Context, string, []llms.Message, llms.StructuredOutputConfig) (llms.LLMResponse, error) {
	panic("not used")
}
func (f *fakeCaller) CallWithRAG(context.Context, string, []llms.Message) (llms.LLMResponse, error) {
	panic("not used")
}
func (f *fakeCaller) CallWithRAGAndTools(context.Context, string, []llms.Message, []llms.ToolDefinition, llms.ToolChoice) (llms.LLMResponse, error) {
	panic("not used")
}

func (f *fakeCaller) StreamPlain(ctx context.Context, model string, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	f.gotMessages = messages
	ch := make(chan llms.StreamChunk, len(f.plainChunks))
	for _, c := range f.plainChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeCaller) StreamWithTools(ctx context.Context, model string, messages []llms.Message, tools []llms.ToolDefinition, choice llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	f.gotMessages = messages
	ch := make(chan llms.StreamChunk, len(f.plainChunks))
	for _, c := range f.plainChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeCaller) StreamWithRAG(context.Context, string, []llms.Message) (<-chan llms.StreamChunk, error) {
	panic("not used")
}
func (f *fakeCaller) StreamWithRAGAndTools(context.Context, string, []llms.Message, []llms.ToolDefinition, llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	panic("not used")
}

// fakeRAG is a minimal RAGService test double keyed by source name.
type fakeRAG struct {
	results map[string]ragclient.RetrievalResult
}

func (f *fakeRAG) QuerySource(ctx context.Context, sourceName, query string) (ragclient.RetrievalResult, error) {
	return f.results[sourceName], nil
}

func drain(t *testing.T, ch <-chan llms.StreamChunk) (text string, final *llms.LLMResponse) {
	t.Helper()
	for c := range ch {
		switch c.Type {
		case "text":
			text += c.Text
		case "done":
			final = c.Final
		case "error":
			t.Fatalf("unexpected error chunk: %v", c.Err)
		}
	}
	return
}

func TestStreamPlainConcatenatesTextAndProducesDone(t *testing.T) {
	caller := &fakeCaller{plainChunks: []llms.StreamChunk{
		{Type: "text", Text: "Hello"},
		{Type: "text", Text: ", world"},
		{Type: "done", Final: &llms.LLMResponse{Content: "Hello, world", ModelUsed: "m"}},
	}}
	adapter := New(caller, nil)

	ch, err := adapter.StreamPlain(context.Background(), "m", []llms.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	text, final := drain(t, ch)
	assert.Equal(t, "Hello, world", text)
	require.NotNil(t, final)
	assert.Equal(t, "Hello, world", final.Content)
}

func TestStreamWithToolsAccumulatesDeltasWhenSourceDoesNotConsolidate(t *testing.T) {
	caller := &fakeCaller{plainChunks: []llms.StreamChunk{
		{Type: "tool_call_delta", Delta: &llms.ToolCallDelta{Index: 0, ID: "call_1", NameDelta: "search", ArgumentsDelta: `{"q":`}},
		{Type: "tool_call_delta", Delta: &llms.ToolCallDelta{Index: 0, ArgumentsDelta: `"x"}`}},
		{Type: "done", Final: &llms.LLMResponse{}},
	}}
	adapter := New(caller, nil)

	ch, err := adapter.StreamWithTools(context.Background(), "m", nil, nil, llms.ToolChoiceAuto)
	require.NoError(t, err)

	_, final := drain(t, ch)
	require.NotNil(t, final)
	require.Len(t, final.ToolCalls, 1)
	assert.Equal(t, "call_1", final.ToolCalls[0].ID)
	assert.Equal(t, "search", final.ToolCalls[0].Name)
	assert.Equal(t, "x", final.ToolCalls[0].Arguments["q"])
}

func TestStreamWithRAGSingleSourceShortcutsOnPreformedCompletion(t *testing.T) {
	rag := &fakeRAG{results: map[string]ragclient.RetrievalResult{
		"kb": {PreformedCompletion: "The answer is 42."},
	}}
	caller := &fakeCaller{}
	adapter := New(caller, rag)

	ch, err := adapter.StreamWithRAG(context.Background(), "m", []llms.Message{{Role: "user", Content: "what is it?"}}, []string{"kb"})
	require.NoError(t, err)

	_, final := drain(t, ch)
	require.NotNil(t, final)
	assert.Equal(t, "The answer is 42.", final.Content)
	assert.Nil(t, caller.gotMessages, "the model must not be called when a single source shortcuts")
}

func TestStreamWithRAGSingleSourceInsertsContextWhenNoShortcut(t *testing.T) {
	rag := &fakeRAG{results: map[string]ragclient.RetrievalResult{
		"kb": {Context: "Paris is the capital of France."},
	}}
	caller := &fakeCaller{plainChunks: []llms.StreamChunk{
		{Type: "done", Final: &llms.LLMResponse{Content: "Paris"}},
	}}
	adapter := New(caller, rag)

	messages := []llms.Message{{Role: "user", Content: "capital of France?"}}
	ch, err := adapter.StreamWithRAG(context.Background(), "m", messages, []string{"kb"})
	require.NoError(t, err)
	drain(t, ch)

	require.Len(t, caller.gotMessages, 2)
	assert.Equal(t, "system", caller.gotMessages[0].Role)
	assert.Contains(t, caller.gotMessages[0].Content, "Paris is the capital of France.")
	assert.Equal(t, "user", caller.gotMessages[1].Role)
}

func TestStreamWithRAGMultiSourceAlwaysConcatenatesIgnoringPreformed(t *testing.T) {
	rag := &fakeRAG{results: map[string]ragclient.RetrievalResult{
		"kb-a": {PreformedCompletion: "shortcut answer", Context: "alpha facts"},
		"kb-b": {Context: "beta facts"},
	}}
	caller := &fakeCaller{plainChunks: []llms.StreamChunk{
		{Type: "done", Final: &llms.LLMResponse{Content: "combined"}},
	}}
	adapter := New(caller, rag)

	ch, err := adapter.StreamWithRAG(context.Background(), "m", []llms.Message{{Role: "user", Content: "q"}}, []string{"kb-a", "kb-b"})
	require.NoError(t, err)
	_, final := drain(t, ch)

	require.NotNil(t, final)
	assert.Equal(t, "combined", final.Content, "multi-source must run the model, not shortcut")
	require.Len(t, caller.gotMessages, 2)
	assert.Contains(t, caller.gotMessages[0].Content, "alpha facts")
	assert.Contains(t, caller.gotMessages[0].Content, "beta facts")
}

func TestStreamWithRAGNoSourcesPassesMessagesUnchanged(t *testing.T) {
	caller := &fakeCaller{plainChunks: []llms.StreamChunk{
		{Type: "done", Final: &llms.LLMResponse{Content: "ok"}},
	}}
	adapter := New(caller, nil)

	messages := []llms.Message{{Role: "user", Content: "hi"}}
	ch, err := adapter.StreamWithRAG(context.Background(), "m", messages, nil)
	require.NoError(t, err)
	drain(t, ch)

	require.Len(t, caller.gotMessages, 1)
	assert.Equal(t, "hi", caller.gotMessages[0].Content)
}
