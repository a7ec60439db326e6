// Package observability wires the ambient tracing/metrics concern (spec
// §2 [ADDED] "Tracing & metrics"): one otel span per agent turn and per
// tool call, plus Prometheus counters/histograms for tool latency and
// server reconnect attempts.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Observability bundles the tracer and the counters/histograms the core
// emits during a turn. A nil *Observability is safe to call every method
// on (each guards on o == nil), so components can take one as an
// optional dependency without a separate enabled/disabled branch.
type Observability struct {
	tracer   trace.Tracer
	registry *promclient.Registry

	agentTurns   metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
	reconnects   metric.Int64Counter
}

// New builds an Observability instance with its own Prometheus registry
// (so a caller can serve it on its own /metrics endpoint rather than
// polluting the default global registry) and a bare trace.TracerProvider
// (no remote exporter is wired — spans are created and ended so
// in-process propagation and future exporter wiring both work, but
// nothing ships off-box by default).
func New(serviceName string) (*Observability, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("observability: create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	meter := meterProvider.Meter(serviceName)

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	o := &Observability{
		tracer:   tracerProvider.Tracer(serviceName),
		registry: registry,
	}

	if o.agentTurns, err = meter.Int64Counter("agentcore.agent.turns", metric.WithDescription("agent loop turns run, by strategy")); err != nil {
		return nil, err
	}
	if o.toolCalls, err = meter.Int64Counter("agentcore.tool.calls", metric.WithDescription("tool calls executed, by tool and outcome")); err != nil {
		return nil, err
	}
	if o.toolDuration, err = meter.Float64Histogram("agentcore.tool.duration_seconds", metric.WithDescription("tool call duration in seconds")); err != nil {
		return nil, err
	}
	if o.reconnects, err = meter.Int64Counter("agentcore.mcp.reconnects", metric.WithDescription("tool-server reconnect attempts, by server and outcome")); err != nil {
		return nil, err
	}

	return o, nil
}

// Registry exposes the Prometheus registry for a caller to serve with
// promhttp.HandlerFor, e.g. under a /metrics route.
func (o *Observability) Registry() *promclient.Registry {
	if o == nil {
		return nil
	}
	return o.registry
}

// StartAgentTurn opens a span for one agent-loop step and records the
// turns counter.
func (o *Observability) StartAgentTurn(ctx context.Context, strategy string, step int) (context.Context, trace.Span) {
	if o == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	o.agentTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	return o.tracer.Start(ctx, "agent_turn", trace.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Int("step", step),
	))
}

// StartToolCall opens a span for one tool invocation and returns a
// finish function that records the outcome counter and latency
// histogram and ends the span. Call finish exactly once.
func (o *Observability) StartToolCall(ctx context.Context, toolName string) (context.Context, func(success bool)) {
	if o == nil {
		return ctx, func(bool) {}
	}
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "tool_call", trace.WithAttributes(attribute.String("tool_name", toolName)))
	return ctx, func(success bool) {
		attrs := metric.WithAttributes(attribute.String("tool_name", toolName), attribute.Bool("success", success))
		o.toolCalls.Add(ctx, 1, attrs)
		o.toolDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if !success {
			span.SetAttributes(attribute.Bool("error", true))
		}
		span.End()
	}
}

// RecordReconnect records one Connection Manager reconnect attempt.
func (o *Observability) RecordReconnect(ctx context.Context, serverName string, success bool) {
	if o == nil {
		return
	}
	o.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server_name", serverName),
		attribute.Bool("success", success),
	))
}
