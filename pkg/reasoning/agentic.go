package reasoning

import (
	"context"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
)

// agenticStrategy injects no control tools: the model decides for itself
// whether to call a tool or answer directly (spec §4.F "agentic"). A
// response with no tool calls is the final answer; otherwise every
// requested tool runs in parallel and the loop continues. When
// in.Streaming is set, text is streamed token by token until tool calls
// are discovered in the response, at which point streaming stops and the
// calls execute.
type agenticStrategy struct {
	deps Deps
}

func newAgenticStrategy(deps Deps) *agenticStrategy { return &agenticStrategy{deps: deps} }

func (s *agenticStrategy) Name() string { return "agentic" }

func (s *agenticStrategy) Run(ctx context.Context, in Input) (Result, error) {
	sink := s.deps.sink()
	emit(ctx, sink, events.TypeAgentStart, events.AgentStartPayload{Strategy: s.Name(), MaxSteps: in.MaxSteps})

	messages := append([]llms.Message(nil), in.Messages...)

	for step := 1; step <= in.MaxSteps; step++ {
		emit(ctx, sink, events.TypeAgentTurnStart, events.AgentTurnStartPayload{Step: step})
		turnCtx, span := s.deps.Obs.StartAgentTurn(ctx, s.Name(), step)

		resp, err := s.step(turnCtx, sink, in, messages)
		span.End()
		if err != nil {
			return Result{}, err
		}

		if !resp.RequestedToolCalls() {
			return s.complete(ctx, sink, resp.Content, step)
		}

		messages = runTools(ctx, resp.ToolCalls, resp.Content, s.deps.Executor, in.Context, in.SkipApproval, sink, s.deps.Obs, messages)
	}

	answer, err := finalPlainCall(ctx, &s.deps, in, messages)
	if err != nil {
		return Result{}, err
	}
	return s.complete(ctx, sink, answer, in.MaxSteps)
}

func (s *agenticStrategy) step(ctx context.Context, sink events.Sink, in Input, messages []llms.Message) (llms.LLMResponse, error) {
	if in.Streaming && s.deps.Stream != nil {
		var ch <-chan llms.StreamChunk
		var err error
		if len(in.DataSources) > 0 {
			ch, err = s.deps.Stream.StreamWithRAGAndTools(ctx, in.Model, messages, in.DataSources, in.SelectedTools, llms.ToolChoiceAuto)
		} else {
			ch, err = s.deps.Stream.StreamWithTools(ctx, in.Model, messages, in.SelectedTools, llms.ToolChoiceAuto)
		}
		if err != nil {
			return llms.LLMResponse{}, err
		}
		return streamToolStep(ctx, sink, ch)
	}

	if len(in.DataSources) > 0 {
		return s.deps.Caller.CallWithRAGAndTools(ctx, in.Model, messages, in.SelectedTools, llms.ToolChoiceAuto)
	}
	return s.deps.Caller.CallWithTools(ctx, in.Model, messages, in.SelectedTools, llms.ToolChoiceAuto)
}

func (s *agenticStrategy) complete(ctx context.Context, sink events.Sink, answer string, steps int) (Result, error) {
	emit(ctx, sink, events.TypeAgentCompletion, events.AgentCompletionPayload{FinalAnswer: answer, Steps: steps, Strategy: s.Name()})
	return Result{FinalAnswer: answer, Steps: steps, Metadata: map[string]interface{}{}}, nil
}
