// Package reasoning implements the four Agent Loop Strategies (spec
// §4.F): act, react, think-act, agentic. All four share one contract
// and differ only in control flow — how many LLM calls a step makes,
// what control tools (if any) are injected, and when the loop stops.
package reasoning

import (
	"context"
	"time"

	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/observability"
	"github.com/flowforge/agentcore/pkg/session"
	"github.com/flowforge/agentcore/pkg/streaming"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

// Input is what the caller passes to run one turn of a strategy.
type Input struct {
	Model         string
	Messages      []llms.Message
	Context       session.Context
	SelectedTools []llms.ToolDefinition
	DataSources   []string
	MaxSteps      int
	Temperature   float64
	Streaming     bool
	SkipApproval  bool
}

// Result is what a strategy returns once the turn is complete.
type Result struct {
	FinalAnswer string
	Steps       int
	Metadata    map[string]interface{}
}

// ToolExecutor is the narrow slice of *executor.Executor a strategy
// depends on, so strategies can be tested against a fake without
// standing up the whole Tool Executor pipeline.
type ToolExecutor interface {
	Execute(ctx context.Context, call llms.ToolCall, sessCtx session.Context, skipApproval bool) toolresult.ToolResult
}

// InputSource delivers a user's reply to an agent_request_input prompt,
// or reports that a stop control message arrived instead, within a
// bounded wait. Only react consumes this.
type InputSource interface {
	WaitForInput(ctx context.Context, timeout time.Duration) (content string, stopped bool, err error)
}

// Strategy is the sealed interface every agent loop variant implements
// (spec §9 "dynamic dispatch of agent strategies": one implementation
// per variant, cached by the factory).
type Strategy interface {
	Name() string
	Run(ctx context.Context, in Input) (Result, error)
}

// Deps bundles a strategy's collaborators. Strategy objects hold only
// immutable references to these (spec §9), so one instance per variant
// can be cached and reused across turns.
type Deps struct {
	Caller   llms.LLMCaller
	Stream   *streaming.Adapter
	Executor ToolExecutor
	Input    InputSource
	Sink     events.Sink
	Obs      *observability.Observability
	Timeouts struct {
		ReactUserInput time.Duration
	}
}

func (d *Deps) sink() events.Sink {
	if d.Sink == nil {
		return events.NopSink
	}
	return d.Sink
}

func emit(ctx context.Context, sink events.Sink, typ events.Type, payload interface{}) {
	sink.Emit(ctx, events.Event{Type: typ, Payload: payload})
}
