package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/toolresult"
)

func TestRunSingleCallInline(t *testing.T) {
	calls := []llms.ToolCall{{ID: "1", Name: "echo"}}
	results := Run(context.Background(), calls, func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error) {
		return toolresult.ToolResult{ToolCallID: call.ID, Success: true, Content: "ok"}, nil
	})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Content)
}

func TestRunPreservesOrderUnderVaryingLatency(t *testing.T) {
	calls := []llms.ToolCall{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 0, "c": 10 * time.Millisecond}
	results := Run(context.Background(), calls, func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error) {
		// "b" finishes first and "a" last; order in the output must
		// still follow input order.
		time.Sleep(delays[call.ID])
		return toolresult.ToolResult{ToolCallID: call.ID, Success: true, Content: call.ID}, nil
	})
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Equal(t, "c", results[2].ToolCallID)
}

func TestRunConvertsErrorToUnsuccessfulResult(t *testing.T) {
	calls := []llms.ToolCall{{ID: "1"}, {ID: "2"}}
	results := Run(context.Background(), calls, func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error) {
		if call.ID == "1" {
			return toolresult.ToolResult{}, fmt.Errorf("boom")
		}
		return toolresult.ToolResult{ToolCallID: call.ID, Success: true}, nil
	})
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "boom", results[0].Error)
	assert.True(t, results[1].Success)
}

func TestRunRecoversFromPanic(t *testing.T) {
	calls := []llms.ToolCall{{ID: "1"}}
	results := Run(context.Background(), calls, func(ctx context.Context, call llms.ToolCall) (toolresult.ToolResult, error) {
		panic("unexpected")
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}
