package reasoning

import (
	"context"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
)

// actStrategy is the simplest agent loop (spec §4.F "act"): one LLM call
// per step, the user's tools plus a reserved finished pseudo-tool with
// tool_choice=required, looping until finished is called or steps run out.
type actStrategy struct {
	deps Deps
}

func newActStrategy(deps Deps) *actStrategy { return &actStrategy{deps: deps} }

func (s *actStrategy) Name() string { return "act" }

func (s *actStrategy) Run(ctx context.Context, in Input) (Result, error) {
	sink := s.deps.sink()
	emit(ctx, sink, events.TypeAgentStart, events.AgentStartPayload{Strategy: s.Name(), MaxSteps: in.MaxSteps})

	messages := append([]llms.Message(nil), in.Messages...)
	tools := append(append([]llms.ToolDefinition(nil), in.SelectedTools...), finishedTool)
	choice := toolChoiceRequired(s.deps.Caller)

	for step := 1; step <= in.MaxSteps; step++ {
		emit(ctx, sink, events.TypeAgentTurnStart, events.AgentTurnStartPayload{Step: step})
		turnCtx, span := s.deps.Obs.StartAgentTurn(ctx, s.Name(), step)

		var resp llms.LLMResponse
		var err error
		if len(in.DataSources) > 0 {
			resp, err = s.deps.Caller.CallWithRAGAndTools(turnCtx, in.Model, messages, tools, choice)
		} else {
			resp, err = s.deps.Caller.CallWithTools(turnCtx, in.Model, messages, tools, choice)
		}
		span.End()
		if err != nil {
			return Result{}, err
		}

		if call, ok := findCall(resp.ToolCalls, "finished"); ok {
			answer, _ := call.Arguments["final_answer"].(string)
			return s.complete(ctx, sink, answer, step)
		}

		if !resp.RequestedToolCalls() {
			return s.complete(ctx, sink, resp.Content, step)
		}

		calls := nonFinishedCalls(resp.ToolCalls)
		messages = runTools(ctx, calls, resp.Content, s.deps.Executor, in.Context, in.SkipApproval, sink, s.deps.Obs, messages)
	}

	answer, err := finalPlainCall(ctx, &s.deps, in, messages)
	if err != nil {
		return Result{}, err
	}
	return s.complete(ctx, sink, answer, in.MaxSteps)
}

func (s *actStrategy) complete(ctx context.Context, sink events.Sink, answer string, steps int) (Result, error) {
	emit(ctx, sink, events.TypeAgentCompletion, events.AgentCompletionPayload{FinalAnswer: answer, Steps: steps, Strategy: s.Name()})
	return Result{FinalAnswer: answer, Steps: steps, Metadata: map[string]interface{}{}}, nil
}
