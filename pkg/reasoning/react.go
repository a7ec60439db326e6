package reasoning

import (
	"context"
	"fmt"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
)

// reactStrategy makes three LLM calls per step (spec §4.F "react"):
// Reason (agent_decide_next), Act (one user tool, forced), Observe
// (agent_observe_decide). Reason may ask the user a question and block
// on a reply before continuing.
type reactStrategy struct {
	deps Deps
}

func newReactStrategy(deps Deps) *reactStrategy { return &reactStrategy{deps: deps} }

func (s *reactStrategy) Name() string { return "react" }

func (s *reactStrategy) Run(ctx context.Context, in Input) (Result, error) {
	sink := s.deps.sink()
	emit(ctx, sink, events.TypeAgentStart, events.AgentStartPayload{Strategy: s.Name(), MaxSteps: in.MaxSteps})

	messages := append([]llms.Message(nil), in.Messages...)

	for step := 1; step <= in.MaxSteps; step++ {
		emit(ctx, sink, events.TypeAgentTurnStart, events.AgentTurnStartPayload{Step: step})

		result, nextMessages, err := s.runStep(ctx, sink, in, step, messages)
		if err != nil {
			return Result{}, err
		}
		messages = nextMessages
		if result != nil {
			return *result, nil
		}
	}

	answer, err := finalPlainCall(ctx, &s.deps, in, messages)
	if err != nil {
		return Result{}, err
	}
	return s.complete(ctx, sink, answer, in.MaxSteps)
}

// runStep runs one Reason/Act/Observe step under a single agent-turn
// span. A non-nil Result means the turn is over; nil means the caller
// should advance to the next step with the returned messages (which
// covers both "kept acting" and "asked the user a question and got a
// reply").
func (s *reactStrategy) runStep(ctx context.Context, sink events.Sink, in Input, step int, messages []llms.Message) (*Result, []llms.Message, error) {
	ctx, span := s.deps.Obs.StartAgentTurn(ctx, s.Name(), step)
	defer span.End()

	var decide decideNextArgs
	reasonText, err := controlChoice(ctx, s.deps.Caller, in.Model, messages, decideNextTool, &decide)
	if err != nil {
		return nil, messages, err
	}
	emit(ctx, sink, events.TypeAgentReason, events.AgentReasonPayload{Text: reasonText})
	messages = append(messages, llms.Message{Role: "assistant", Content: reasonText})

	if decide.Finish {
		result, err := s.complete(ctx, sink, decide.FinalAnswer, step)
		return &result, messages, err
	}

	if decide.RequestInput != nil {
		emit(ctx, sink, events.TypeAgentRequestInput, events.AgentRequestInputPayload{Question: decide.RequestInput.Question})
		if s.deps.Input == nil {
			return nil, messages, fmt.Errorf("react: agent_decide_next requested user input but no InputSource is configured")
		}
		reply, stopped, err := s.deps.Input.WaitForInput(ctx, s.deps.Timeouts.ReactUserInput)
		if err != nil {
			return nil, messages, err
		}
		if stopped {
			result, err := s.complete(ctx, sink, "", step)
			return &result, messages, err
		}
		messages = append(messages, llms.Message{Role: "user", Content: reply})
		return nil, messages, nil
	}

	var actResp llms.LLMResponse
	if len(in.DataSources) > 0 {
		actResp, err = s.deps.Caller.CallWithRAGAndTools(ctx, in.Model, messages, in.SelectedTools, toolChoiceRequired(s.deps.Caller))
	} else {
		actResp, err = s.deps.Caller.CallWithTools(ctx, in.Model, messages, in.SelectedTools, toolChoiceRequired(s.deps.Caller))
	}
	if err != nil {
		return nil, messages, err
	}
	if !actResp.RequestedToolCalls() {
		result, err := s.complete(ctx, sink, actResp.Content, step)
		return &result, messages, err
	}

	first := actResp.ToolCalls[0]
	messages = runTools(ctx, []llms.ToolCall{first}, actResp.Content, s.deps.Executor, in.Context, in.SkipApproval, sink, s.deps.Obs, messages)

	var observe observeDecideArgs
	observeText, err := controlChoice(ctx, s.deps.Caller, in.Model, messages, observeDecideTool, &observe)
	if err != nil {
		return nil, messages, err
	}
	emit(ctx, sink, events.TypeAgentObserve, events.AgentObservePayload{Observation: observe.Observation, ShouldContinue: observe.ShouldContinue})
	messages = append(messages, llms.Message{Role: "assistant", Content: observeText})

	if observe.FinalAnswer != "" {
		result, err := s.complete(ctx, sink, observe.FinalAnswer, step)
		return &result, messages, err
	}

	if !observe.ShouldContinue {
		result, err := s.complete(ctx, sink, observe.Observation, step)
		return &result, messages, err
	}

	return nil, messages, nil
}

func (s *reactStrategy) complete(ctx context.Context, sink events.Sink, answer string, steps int) (Result, error) {
	emit(ctx, sink, events.TypeAgentCompletion, events.AgentCompletionPayload{FinalAnswer: answer, Steps: steps, Strategy: s.Name()})
	return Result{FinalAnswer: answer, Steps: steps, Metadata: map[string]interface{}{}}, nil
}
