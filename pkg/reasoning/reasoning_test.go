package reasoning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/session"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

// fakeCaller drives each test's LLM call sequence by name: CallWithTools
// and CallWithRAGAndTools both draw from the same queue, matching how
// strategies pick one or the other depending on whether data sources are
// set, never both.
type fakeCaller struct {
	responses []llms.LLMResponse
	calls     int
	gotTools  [][]llms.ToolDefinition
}

func (f *fakeCaller) next() llms.LLMResponse {
	r := f.responses[f.calls]
	f.calls++
	return r
}

func (f *fakeCaller) CallPlain(context.Context, string, []llms.Message) (llms.LLMResponse, error) {
	return f.next(), nil
}
func (f *fakeCaller) CallWithTools(_ context.Context, _ string, _ []llms.Message, tools []llms.ToolDefinition, _ llms.ToolChoice) (llms.LLMResponse, error) {
	f.gotTools = append(f.gotTools, tools)
	return f.next(), nil
}
func (f *fakeCaller) CallStructured(context.Context, string, []llms.Message, llms.StructuredOutputConfig) (llms.LLMResponse, error) {
	return f.next(), nil
}
func (f *fakeCaller) CallWithRAG(context.Context, string, []llms.Message) (llms.LLMResponse, error) {
	return f.next(), nil
}
func (f *fakeCaller) CallWithRAGAndTools(_ context.Context, _ string, _ []llms.Message, tools []llms.ToolDefinition, _ llms.ToolChoice) (llms.LLMResponse, error) {
	f.gotTools = append(f.gotTools, tools)
	return f.next(), nil
}
func (f *fakeCaller) StreamPlain(context.Context, string, []llms.Message) (<-chan llms.StreamChunk, error) {
	panic("not used")
}
func (f *fakeCaller) StreamWithTools(context.Context, string, []llms.Message, []llms.ToolDefinition, llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	panic("not used")
}
func (f *fakeCaller) StreamWithRAG(context.Context, string, []llms.Message) (<-chan llms.StreamChunk, error) {
	panic("not used")
}
func (f *fakeCaller) StreamWithRAGAndTools(context.Context, string, []llms.Message, []llms.ToolDefinition, llms.ToolChoice) (<-chan llms.StreamChunk, error) {
	panic("not used")
}

func (f *fakeCaller) SupportsRequiredToolChoice() bool { return true }

// fakeExecutor always succeeds, echoing the call's tool name.
type fakeExecutor struct {
	executed []string
}

func (f *fakeExecutor) Execute(_ context.Context, call llms.ToolCall, _ session.Context, _ bool) toolresult.ToolResult {
	f.executed = append(f.executed, call.Name)
	return toolresult.ToolResult{ToolCallID: call.ID, Content: "ok:" + call.Name, Success: true}
}

// fakeInputSource replies once with a canned answer.
type fakeInputSource struct {
	reply   string
	stopped bool
}

func (f *fakeInputSource) WaitForInput(context.Context, time.Duration) (string, bool, error) {
	return f.reply, f.stopped, nil
}

func collectEvents() (*events.Sink, *[]events.Event) {
	var got []events.Event
	var sink events.Sink = events.SinkFunc(func(_ context.Context, ev events.Event) {
		got = append(got, ev)
	})
	return &sink, &got
}

func baseInput(tools []llms.ToolDefinition) Input {
	return Input{
		Model:         "m",
		Messages:      []llms.Message{{Role: "user", Content: "do the thing"}},
		SelectedTools: tools,
		MaxSteps:      5,
	}
}

func searchTool() llms.ToolDefinition {
	return llms.ToolDefinition{Name: "search", Description: "search", Parameters: map[string]interface{}{"type": "object"}}
}

// S1: agentic completes on the first turn when the model answers without
// requesting any tool.
func TestAgenticCompletesOnFirstTurn(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{Content: "the answer is 4"},
	}}
	exec := &fakeExecutor{}
	sink, got := collectEvents()
	deps := Deps{Caller: caller, Executor: exec, Sink: *sink}

	strat := newAgenticStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "the answer is 4", res.FinalAnswer)
	assert.Equal(t, 1, res.Steps)
	assert.Empty(t, exec.executed)
	assert.Equal(t, events.TypeAgentCompletion, (*got)[len(*got)-1].Type)
}

func TestAgenticRunsToolCallsInParallelThenCompletes(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "search", Arguments: map[string]interface{}{"q": "x"}}}},
		{Content: "done"},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newAgenticStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "done", res.FinalAnswer)
	assert.Equal(t, []string{"search"}, exec.executed)
}

func TestActReturnsFinishedArgument(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "finished", Arguments: map[string]interface{}{"final_answer": "42"}}}},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newActStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "42", res.FinalAnswer)
	assert.Equal(t, 1, res.Steps)
}

func TestActExecutesNonFinishedCallsAndLoops(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "search", Arguments: map[string]interface{}{}}}},
		{ToolCalls: []llms.ToolCall{{ID: "2", Name: "finished", Arguments: map[string]interface{}{"final_answer": "wrapped up"}}}},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newActStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "wrapped up", res.FinalAnswer)
	assert.Equal(t, []string{"search"}, exec.executed)
	assert.Equal(t, 2, res.Steps)
}

// S2: react requests user input mid-turn and incorporates the reply
// before finishing.
func TestReactRequestsUserInputThenFinishes(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "agent_decide_next", Arguments: map[string]interface{}{
			"request_input": map[string]interface{}{"question": "which file?"},
		}}}},
		{ToolCalls: []llms.ToolCall{{ID: "2", Name: "agent_decide_next", Arguments: map[string]interface{}{
			"finish": true, "final_answer": "used report.csv",
		}}}},
	}}
	exec := &fakeExecutor{}
	input := &fakeInputSource{reply: "report.csv"}
	sink, got := collectEvents()
	deps := Deps{Caller: caller, Executor: exec, Input: input, Sink: *sink}
	deps.Timeouts.ReactUserInput = time.Second

	strat := newReactStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "used report.csv", res.FinalAnswer)

	var sawRequestInput bool
	for _, ev := range *got {
		if ev.Type == events.TypeAgentRequestInput {
			sawRequestInput = true
		}
	}
	assert.True(t, sawRequestInput, "expected agent_request_input to be emitted")
}

func TestReactActsOnFirstCallOnlyThenObservesToFinish(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "agent_decide_next", Arguments: map[string]interface{}{"finish": false}}}},
		{ToolCalls: []llms.ToolCall{
			{ID: "2", Name: "search", Arguments: map[string]interface{}{}},
			{ID: "3", Name: "search", Arguments: map[string]interface{}{}},
		}},
		{ToolCalls: []llms.ToolCall{{ID: "4", Name: "agent_observe_decide", Arguments: map[string]interface{}{
			"should_continue": false, "observation": "found it", "final_answer": "found it",
		}}}},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newReactStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "found it", res.FinalAnswer)
	assert.Len(t, exec.executed, 1, "react's act phase must run only the first requested call")
}

func TestThinkActFinishesOnInitialThink(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "agent_think", Arguments: map[string]interface{}{"finish": true, "final_answer": "trivial"}}}},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newThinkActStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "trivial", res.FinalAnswer)
	assert.Equal(t, 1, res.Steps)
}

func TestThinkActAlternatesActAndThink(t *testing.T) {
	caller := &fakeCaller{responses: []llms.LLMResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "agent_think", Arguments: map[string]interface{}{"finish": false}}}},
		{ToolCalls: []llms.ToolCall{{ID: "2", Name: "search", Arguments: map[string]interface{}{}}}},
		{ToolCalls: []llms.ToolCall{{ID: "3", Name: "agent_think", Arguments: map[string]interface{}{"finish": true, "final_answer": "wrapped"}}}},
	}}
	exec := &fakeExecutor{}
	deps := Deps{Caller: caller, Executor: exec, Sink: events.NopSink}

	strat := newThinkActStrategy(deps)
	res, err := strat.Run(context.Background(), baseInput([]llms.ToolDefinition{searchTool()}))

	require.NoError(t, err)
	assert.Equal(t, "wrapped", res.FinalAnswer)
	assert.Equal(t, []string{"search"}, exec.executed)
}

func TestFactoryCachesAndAliasesThinkAct(t *testing.T) {
	deps := Deps{Caller: &fakeCaller{}, Executor: &fakeExecutor{}, Sink: events.NopSink}
	f := NewFactory(deps)

	a, err := f.CreateStrategy("think_act")
	require.NoError(t, err)
	assert.Equal(t, "think-act", a.Name())

	b, err := f.CreateStrategy("ThinkAct")
	require.NoError(t, err)
	assert.Same(t, a, b, "same normalized name must return the cached instance")
}

func TestFactoryFallsBackToReactForUnknownName(t *testing.T) {
	deps := Deps{Caller: &fakeCaller{}, Executor: &fakeExecutor{}, Sink: events.NopSink}
	f := NewFactory(deps)

	s, err := f.CreateStrategy("made-up-strategy")
	require.NoError(t, err)
	assert.Equal(t, "react", s.Name())
}
