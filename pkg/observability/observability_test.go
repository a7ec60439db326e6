package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersMetricsFamilies(t *testing.T) {
	obs, err := New("agentcore-test")
	require.NoError(t, err)
	require.NotNil(t, obs.Registry())

	ctx := context.Background()
	_, span := obs.StartAgentTurn(ctx, "react", 1)
	span.End()

	_, finish := obs.StartToolCall(ctx, "search")
	finish(true)

	obs.RecordReconnect(ctx, "filesystem", false)

	families := gatherFamily(t, obs.Registry(), "agentcore_agent_turns_total")
	require.Len(t, families.Metric, 1)
	assert.Equal(t, float64(1), families.Metric[0].Counter.GetValue())

	toolFamilies := gatherFamily(t, obs.Registry(), "agentcore_tool_calls_total")
	require.Len(t, toolFamilies.Metric, 1)
	assert.Equal(t, float64(1), toolFamilies.Metric[0].Counter.GetValue())

	reconnectFamilies := gatherFamily(t, obs.Registry(), "agentcore_mcp_reconnects_total")
	require.Len(t, reconnectFamilies.Metric, 1)
	assert.Equal(t, float64(1), reconnectFamilies.Metric[0].Counter.GetValue())
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var obs *Observability
	ctx := context.Background()

	_, span := obs.StartAgentTurn(ctx, "act", 1)
	span.End()

	_, finish := obs.StartToolCall(ctx, "search")
	assert.NotPanics(t, func() { finish(true) })

	assert.NotPanics(t, func() { obs.RecordReconnect(ctx, "filesystem", true) })
	assert.Nil(t, obs.Registry())
}

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}
