package reasoning

import (
	"context"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
)

// thinkActStrategy alternates a single control-tool think step with a
// single forced tool-call act step (spec §4.F "think-act"): the first
// step is always a think, then the loop pairs one act with one think
// until agent_think reports finish or steps run out.
type thinkActStrategy struct {
	deps Deps
}

func newThinkActStrategy(deps Deps) *thinkActStrategy { return &thinkActStrategy{deps: deps} }

func (s *thinkActStrategy) Name() string { return "think-act" }

func (s *thinkActStrategy) Run(ctx context.Context, in Input) (Result, error) {
	sink := s.deps.sink()
	emit(ctx, sink, events.TypeAgentStart, events.AgentStartPayload{Strategy: s.Name(), MaxSteps: in.MaxSteps})

	messages := append([]llms.Message(nil), in.Messages...)
	step := 0

	think := func() (thinkArgs, bool, error) {
		step++
		emit(ctx, sink, events.TypeAgentTurnStart, events.AgentTurnStartPayload{Step: step})
		turnCtx, span := s.deps.Obs.StartAgentTurn(ctx, s.Name(), step)
		var args thinkArgs
		text, err := controlChoice(turnCtx, s.deps.Caller, in.Model, messages, thinkTool, &args)
		span.End()
		if err != nil {
			return thinkArgs{}, false, err
		}
		emit(ctx, sink, events.TypeAgentReason, events.AgentReasonPayload{Text: text})
		messages = append(messages, llms.Message{Role: "assistant", Content: text})
		return args, step >= in.MaxSteps, nil
	}

	args, exhausted, err := think()
	if err != nil {
		return Result{}, err
	}
	if args.Finish {
		return s.complete(ctx, sink, args.FinalAnswer, step)
	}

	for !exhausted {
		step++
		emit(ctx, sink, events.TypeAgentTurnStart, events.AgentTurnStartPayload{Step: step})
		turnCtx, span := s.deps.Obs.StartAgentTurn(ctx, s.Name(), step)

		var actResp llms.LLMResponse
		if len(in.DataSources) > 0 {
			actResp, err = s.deps.Caller.CallWithRAGAndTools(turnCtx, in.Model, messages, in.SelectedTools, toolChoiceRequired(s.deps.Caller))
		} else {
			actResp, err = s.deps.Caller.CallWithTools(turnCtx, in.Model, messages, in.SelectedTools, toolChoiceRequired(s.deps.Caller))
		}
		span.End()
		if err != nil {
			return Result{}, err
		}

		if actResp.RequestedToolCalls() {
			first := actResp.ToolCalls[0]
			messages = runTools(ctx, []llms.ToolCall{first}, actResp.Content, s.deps.Executor, in.Context, in.SkipApproval, sink, s.deps.Obs, messages)
		} else {
			messages = append(messages, llms.Message{Role: "assistant", Content: actResp.Content})
		}

		if step >= in.MaxSteps {
			break
		}

		args, exhausted, err = think()
		if err != nil {
			return Result{}, err
		}
		if args.Finish {
			return s.complete(ctx, sink, args.FinalAnswer, step)
		}
	}

	answer, err := finalPlainCall(ctx, &s.deps, in, messages)
	if err != nil {
		return Result{}, err
	}
	return s.complete(ctx, sink, answer, in.MaxSteps)
}

func (s *thinkActStrategy) complete(ctx context.Context, sink events.Sink, answer string, steps int) (Result, error) {
	emit(ctx, sink, events.TypeAgentCompletion, events.AgentCompletionPayload{FinalAnswer: answer, Steps: steps, Strategy: s.Name()})
	return Result{FinalAnswer: answer, Steps: steps, Metadata: map[string]interface{}{}}, nil
}
