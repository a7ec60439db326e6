// Package dispatch implements the Parallel Dispatcher (spec §4.E): it
// runs an ordered batch of tool calls concurrently and returns results
// in the same order, regardless of completion order.
package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

// Executor runs one ToolCall to completion. It must not panic; any
// error it returns is converted into an unsuccessful ToolResult so a
// single bad call never aborts its siblings.
type Executor func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error)

// Run executes calls concurrently via Executor and returns results in
// the same order as calls, regardless of completion order. A single
// call is executed inline with no goroutine overhead. There is no
// concurrency cap (spec §4.E: "the effective cap is the LLM's per-turn
// tool-call count"). Grounded on the errgroup fan-out idiom; hector uses
// goroutine+sync.WaitGroup directly in several spots (e.g.
// pkg/tools/registry.go discovery fan-out) but the pack's own
// golang.org/x/sync/errgroup dependency is the idiomatic upgrade for
// "run N, collect N results, keep going on individual failure".
func Run(ctx context.Context, calls []llms.ToolCall, exec Executor) []toolresult.ToolResult {
	if len(calls) == 1 {
		return []toolresult.ToolResult{runOne(ctx, calls[0], exec)}
	}

	results := make([]toolresult.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = runOne(gctx, call, exec)
			return nil
		})
	}
	_ = g.Wait() // runOne never returns an error to the group; it's captured per-result instead

	return results
}

func runOne(ctx context.Context, call llms.ToolCall, exec Executor) (result toolresult.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = toolresult.ErrorResult(call.ID, "tool execution panicked")
		}
	}()

	result, err := exec(ctx, call)
	if err != nil {
		return toolresult.ErrorResult(call.ID, err.Error())
	}
	return result
}
