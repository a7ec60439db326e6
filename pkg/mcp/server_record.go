// Package mcp implements the Tool-Server Connection Manager (spec §4.A):
// discovery, per-user auth, and backoff-driven reconnect for a set of
// external MCP-style tool servers reachable over stdio, http, or sse.
package mcp

import (
	"sync"
	"time"

	"github.com/flowforge/agentcore/pkg/config"
)

// ConnState is the runtime connection state of one server.
type ConnState string

const (
	StateConnected ConnState = "connected"
	StateFailed    ConnState = "failed"
)

// ToolDescriptor is a discovered tool's name, description, and JSON-schema
// input shape, as reported by a server's list_tools call.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// PromptDescriptor is a discovered prompt template, as reported by a
// server's list_prompts call.
type PromptDescriptor struct {
	Name        string
	Description string
	Arguments   []string
}

// ServerRecord is the runtime record for one external tool server: its
// static config plus discovery results and failure-tracking state (spec
// §3 ServerRecord).
type ServerRecord struct {
	Config config.ServerConfig

	mu               sync.RWMutex
	state            ConnState
	tools            []ToolDescriptor
	prompts          []PromptDescriptor
	firstFailureTime time.Time
	lastAttempt      time.Time
	attemptCount     int
	lastError        string
}

// NewServerRecord creates a record in the StateFailed state (not yet
// connected); Initialize/Reconnect move it to StateConnected on success.
func NewServerRecord(cfg config.ServerConfig) *ServerRecord {
	return &ServerRecord{Config: cfg, state: StateFailed}
}

// NewConnectedServerRecord builds a record already in StateConnected
// with the given discovery results, for callers (tests, internal/
// toolindex's own tests, static fixtures) that need a populated record
// without driving a real connect/discover round.
func NewConnectedServerRecord(cfg config.ServerConfig, tools []ToolDescriptor, prompts []PromptDescriptor) *ServerRecord {
	rec := NewServerRecord(cfg)
	rec.markConnected(tools, prompts)
	return rec
}

func (r *ServerRecord) Name() string { return r.Config.Name }

func (r *ServerRecord) State() ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *ServerRecord) Tools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *ServerRecord) Prompts() []PromptDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptDescriptor, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// markConnected records a successful connection/discovery round.
func (r *ServerRecord) markConnected(tools []ToolDescriptor, prompts []PromptDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateConnected
	r.tools = tools
	r.prompts = prompts
	r.attemptCount = 0
	r.firstFailureTime = time.Time{}
	r.lastError = ""
}

// markFailed records a failed connection attempt, per §4.A "Failure
// tracking": first_failure_time is set once, attempt_count increments
// monotonically, and the empty-tools/prompts discovery downgrade (when
// only discovery failed, not the connection itself) is the caller's
// choice via keepTools.
func (r *ServerRecord) markFailed(err error, keepTools bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if r.attemptCount == 0 {
		r.firstFailureTime = now
	}
	r.lastAttempt = now
	r.attemptCount++
	if err != nil {
		r.lastError = err.Error()
	}
	r.state = StateFailed
	if !keepTools {
		r.tools = nil
		r.prompts = nil
	}
}

// FailureInfo is a read-only snapshot of a server's failure-tracking
// state, consumed by the backoff calculator and by reconnect reporting.
type FailureInfo struct {
	FirstFailureTime time.Time
	LastAttempt      time.Time
	AttemptCount     int
	LastError        string
}

func (r *ServerRecord) Failure() FailureInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FailureInfo{
		FirstFailureTime: r.firstFailureTime,
		LastAttempt:      r.lastAttempt,
		AttemptCount:     r.attemptCount,
		LastError:        r.lastError,
	}
}
