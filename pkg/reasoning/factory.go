package reasoning

import (
	"log/slog"
	"strings"
	"sync"
)

// Factory caches one Strategy instance per variant name (spec §9: caching
// is acceptable because strategy objects hold only immutable references to
// their Deps), rather than constructing a fresh strategy per turn.
type Factory struct {
	deps Deps

	mu    sync.Mutex
	cache map[string]Strategy
}

func NewFactory(deps Deps) *Factory {
	return &Factory{deps: deps, cache: make(map[string]Strategy)}
}

// CreateStrategy resolves name (case-insensitively, with think_act and
// thinkact both aliasing think-act) to a cached Strategy. An unrecognized
// name falls back to react with a warning rather than failing the turn.
func (f *Factory) CreateStrategy(name string) (Strategy, error) {
	normalized := normalizeStrategyName(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.cache[normalized]; ok {
		return s, nil
	}

	s, err := f.build(normalized)
	if err != nil {
		return nil, err
	}
	f.cache[normalized] = s
	return s, nil
}

func (f *Factory) build(normalized string) (Strategy, error) {
	switch normalized {
	case "act":
		return newActStrategy(f.deps), nil
	case "react", "":
		return newReactStrategy(f.deps), nil
	case "think-act":
		return newThinkActStrategy(f.deps), nil
	case "agentic":
		return newAgenticStrategy(f.deps), nil
	default:
		slog.Warn("unknown reasoning strategy, falling back to react", "requested", normalized)
		return newReactStrategy(f.deps), nil
	}
}

func normalizeStrategyName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "think_act", "thinkact":
		return "think-act"
	default:
		return name
	}
}

// ListAvailableStrategies describes every variant the factory can build,
// for surfacing in configuration validation or diagnostics.
func ListAvailableStrategies() []StrategyInfo {
	return []StrategyInfo{
		{Name: "act", Description: "One LLM call per step, user tools plus a reserved finished(final_answer) pseudo-tool."},
		{Name: "react", Description: "Reason, Act, Observe: three LLM calls per step, with an optional user-input request in Reason."},
		{Name: "think-act", Description: "A single agent_think control tool alternated with one forced tool call per step."},
		{Name: "agentic", Description: "No control tools; the model freely chooses tool calls or a final answer each step."},
	}
}

// StrategyInfo describes one reasoning strategy variant.
type StrategyInfo struct {
	Name        string
	Description string
}
