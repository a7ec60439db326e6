package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowforge/agentcore/pkg/auth"
	"github.com/flowforge/agentcore/pkg/config"
	"github.com/flowforge/agentcore/pkg/events"
)

// AuthenticationRequiredError signals that a server call needs a
// caller-scoped credential the Manager doesn't have yet; it is not a
// connection failure and must not trip the server's backoff (spec §4.A
// "AuthenticationRequired as a distinct non-fatal-to-connection error
// kind").
type AuthenticationRequiredError struct {
	ServerName    string
	AuthType      config.AuthType
	OAuthStartURL string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("server %q requires authentication (%s)", e.ServerName, e.AuthType)
}

// Manager is the Tool-Server Connection Manager: it owns one
// ServerRecord and zero-or-more live clients per configured server,
// drives discovery and reconnect, and dispatches call_tool requests.
// Grounded on hector's pkg/tools.MCPClientManager (a registry of
// MCPToolSource records with shared discovery/connect lifecycle).
type Manager struct {
	reconnectCfg config.ReconnectConfig
	timeouts     config.TimeoutConfig
	tokens       auth.TokenStorage
	sink         events.Sink
	callbacks    *callbackRouter

	mu          sync.RWMutex
	records     map[string]*ServerRecord
	sharedConns map[string]client            // serverName -> client, for servers with no per-user auth
	userConns   map[string]map[string]client // serverName -> userEmail -> client

	jwtMu         sync.Mutex
	jwtValidators map[string]*auth.JWTValidator // serverName -> validator, for auth_type=jwt servers
}

// NewManager builds a Manager over the given server configs. It does
// not connect to anything until Initialize is called.
func NewManager(servers []config.ServerConfig, reconnectCfg config.ReconnectConfig, timeouts config.TimeoutConfig, tokens auth.TokenStorage, sink events.Sink) *Manager {
	reconnectCfg.SetDefaults()
	timeouts.SetDefaults()
	if sink == nil {
		sink = events.NopSink
	}
	records := make(map[string]*ServerRecord, len(servers))
	for _, s := range servers {
		s.SetDefaults()
		records[s.Name] = NewServerRecord(s)
	}
	return &Manager{
		reconnectCfg:  reconnectCfg,
		timeouts:      timeouts,
		tokens:        tokens,
		sink:          sink,
		callbacks:     newCallbackRouter(),
		records:       records,
		sharedConns:   make(map[string]client),
		userConns:     make(map[string]map[string]client),
		jwtValidators: make(map[string]*auth.JWTValidator),
	}
}

// Servers returns a snapshot of every configured server's record.
func (m *Manager) Servers() []*ServerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ServerRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

func (m *Manager) Server(name string) (*ServerRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[name]
	return r, ok
}

// Initialize connects to every configured server concurrently, bounding
// each attempt to the discovery timeout. Per-user-auth servers are
// skipped here; their first connection is made lazily on first call_tool
// for a given caller (spec §4.A "Per-user auth").
func (m *Manager) Initialize(ctx context.Context) {
	var wg sync.WaitGroup
	for _, rec := range m.Servers() {
		if rec.Config.RequiresPerUserAuth() {
			continue
		}
		wg.Add(1)
		go func(rec *ServerRecord) {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, m.timeouts.Discovery)
			defer cancel()
			if err := m.connectShared(dctx, rec); err != nil {
				slog.Warn("mcp server connect failed", "server", rec.Name(), "error", err)
			}
		}(rec)
	}
	wg.Wait()
}

// connectShared establishes (or re-establishes) the single shared client
// for a server that doesn't require per-user auth, discovers its tools
// and prompts, and updates the record.
func (m *Manager) connectShared(ctx context.Context, rec *ServerRecord) error {
	cl, err := newClientFor(rec.Config)
	if err != nil {
		rec.markFailed(err, false)
		return err
	}
	if err := cl.connect(ctx); err != nil {
		rec.markFailed(err, false)
		return err
	}
	tools, prompts, err := discover(ctx, cl)
	if err != nil {
		// Connected but discovery failed: the client is not kept, so the
		// server stays failed and is retried; stale tools are dropped.
		rec.markFailed(err, false)
		return err
	}
	m.mu.Lock()
	m.sharedConns[rec.Name()] = cl
	m.mu.Unlock()
	rec.markConnected(tools, prompts)
	return nil
}

func discover(ctx context.Context, cl client) ([]ToolDescriptor, []PromptDescriptor, error) {
	tools, err := cl.listTools(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}
	prompts, _ := cl.listPrompts(ctx)
	return tools, prompts, nil
}

// newClientFor is a variable so tests can substitute a fake transport.
var newClientFor = func(cfg config.ServerConfig) (client, error) {
	transport, err := resolveTransport(cfg)
	if err != nil {
		return nil, err
	}
	switch transport {
	case config.TransportStdio:
		return newStdioClient(cfg.Command, cfg.Args, cfg.Env), nil
	case config.TransportHTTP, config.TransportSSE:
		return newHTTPClient(cfg), nil
	default:
		return nil, fmt.Errorf("server %q: unsupported transport %q", cfg.Name, transport)
	}
}

// Reconnect re-attempts connection to one server, respecting backoff
// unless force is set (spec §4.A entry point 2, "explicit force").
func (m *Manager) Reconnect(ctx context.Context, serverName string, force bool) error {
	rec, ok := m.Server(serverName)
	if !ok {
		return fmt.Errorf("unknown server %q", serverName)
	}
	if !force && !dueForReconnect(m.reconnectCfg, rec.Failure(), time.Now()) {
		return fmt.Errorf("server %q not yet due for reconnect", serverName)
	}
	dctx, cancel := context.WithTimeout(ctx, m.timeouts.Discovery)
	defer cancel()
	if rec.Config.RequiresPerUserAuth() {
		// Per-user connections reconnect lazily on next call; clear any
		// cached ones so the next call_tool rebuilds them.
		m.mu.Lock()
		delete(m.userConns, serverName)
		m.mu.Unlock()
		rec.markConnected(rec.Tools(), rec.Prompts())
		return nil
	}
	return m.connectShared(dctx, rec)
}

// RunBackgroundReconnectLoop polls every failed server once per
// base-interval tick and reconnects those whose backoff has elapsed.
// Only runs when ReconnectConfig.BackgroundLoop is enabled (spec §4.A
// entry point 1); callers run it in its own goroutine and cancel ctx to
// stop it.
func (m *Manager) RunBackgroundReconnectLoop(ctx context.Context) {
	if !m.reconnectCfg.BackgroundLoop {
		return
	}
	ticker := time.NewTicker(m.reconnectCfg.BaseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rec := range m.Servers() {
				if rec.State() == StateConnected {
					continue
				}
				if !dueForReconnect(m.reconnectCfg, rec.Failure(), time.Now()) {
					continue
				}
				if err := m.Reconnect(ctx, rec.Name(), false); err != nil {
					slog.Debug("background reconnect attempt failed", "server", rec.Name(), "error", err)
				}
			}
		}
	}
}

// CallTool dispatches one tool invocation to its owning server,
// resolving per-user auth first when the server requires it (spec §4.A
// "Per-user auth", §4.A operation "call_tool").
func (m *Manager) CallTool(ctx context.Context, userEmail, serverName, toolName string, args map[string]interface{}, toolCallID string, progress ProgressSink) (*ToolCallResult, error) {
	rec, ok := m.Server(serverName)
	if !ok {
		return nil, fmt.Errorf("unknown server %q", serverName)
	}

	cl, callCtx, err := m.clientFor(ctx, rec, userEmail)
	if err != nil {
		return nil, err
	}

	m.callbacks.register(serverName, toolCallID, progress)
	defer m.callbacks.unregister(serverName, toolCallID)

	tctx, cancel := context.WithTimeout(callCtx, m.timeouts.ToolCall)
	defer cancel()

	result, err := cl.callTool(tctx, toolName, args, m.callbacks.route(serverName, toolCallID))
	if err != nil {
		return nil, fmt.Errorf("call tool %q on %q: %w", toolName, serverName, err)
	}
	return result, nil
}

// clientFor resolves (lazily connecting if needed) the client that
// should serve a call, and a context carrying the caller's token when
// the server requires per-user auth.
func (m *Manager) clientFor(ctx context.Context, rec *ServerRecord, userEmail string) (client, context.Context, error) {
	if !rec.Config.RequiresPerUserAuth() {
		m.mu.RLock()
		cl, ok := m.sharedConns[rec.Name()]
		m.mu.RUnlock()
		if !ok {
			return nil, nil, fmt.Errorf("server %q is not connected", rec.Name())
		}
		return cl, ctx, nil
	}

	if m.tokens == nil {
		return nil, nil, &AuthenticationRequiredError{ServerName: rec.Name(), AuthType: rec.Config.AuthType, OAuthStartURL: rec.Config.OAuthStartURL}
	}
	tok, err := m.tokens.GetValidToken(ctx, rec.Name(), userEmail)
	if err != nil {
		return nil, nil, &AuthenticationRequiredError{ServerName: rec.Name(), AuthType: rec.Config.AuthType, OAuthStartURL: rec.Config.OAuthStartURL}
	}

	if rec.Config.AuthType == config.AuthJWT {
		validator, verr := m.jwtValidatorFor(ctx, rec.Config)
		if verr != nil {
			return nil, nil, fmt.Errorf("jwt validator for %q: %w", rec.Name(), verr)
		}
		if validator != nil {
			if _, verr := validator.Validate(ctx, tok.Token); verr != nil {
				return nil, nil, &AuthenticationRequiredError{ServerName: rec.Name(), AuthType: rec.Config.AuthType, OAuthStartURL: rec.Config.OAuthStartURL}
			}
		}
	}

	m.mu.Lock()
	perUser, ok := m.userConns[rec.Name()]
	if !ok {
		perUser = make(map[string]client)
		m.userConns[rec.Name()] = perUser
	}
	cl, ok := perUser[userEmail]
	m.mu.Unlock()

	if !ok {
		cl, err = newClientFor(rec.Config)
		if err != nil {
			return nil, nil, err
		}
		dctx, cancel := context.WithTimeout(ctx, m.timeouts.Discovery)
		err = cl.connect(withAuthToken(dctx, tok.Token))
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("connect to %q as %q: %w", rec.Name(), userEmail, err)
		}
		m.mu.Lock()
		perUser[userEmail] = cl
		m.mu.Unlock()
	}

	return cl, withAuthToken(ctx, tok.Token), nil
}

// jwtValidatorFor lazily builds and caches the JWKS-backed validator for a
// server configured with auth_type=jwt. A server without a jwks_url gets
// no validator and its stored token's own ExpiresAt is trusted as-is.
func (m *Manager) jwtValidatorFor(ctx context.Context, cfg config.ServerConfig) (*auth.JWTValidator, error) {
	if cfg.JWKSURL == "" {
		return nil, nil
	}
	m.jwtMu.Lock()
	defer m.jwtMu.Unlock()
	if v, ok := m.jwtValidators[cfg.Name]; ok {
		return v, nil
	}
	v, err := auth.NewJWTValidator(ctx, cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return nil, err
	}
	m.jwtValidators[cfg.Name] = v
	return v, nil
}

// removeServer drops a server's record and closes its live clients, used
// by the config reloader when a server is removed or changed.
func (m *Manager) removeServer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cl, ok := m.sharedConns[name]; ok {
		_ = cl.close()
		delete(m.sharedConns, name)
	}
	if perUser, ok := m.userConns[name]; ok {
		for _, cl := range perUser {
			_ = cl.close()
		}
		delete(m.userConns, name)
	}
	delete(m.records, name)
}

// addServer registers a new server config and, for servers without
// per-user auth, connects it immediately.
func (m *Manager) addServer(ctx context.Context, cfg config.ServerConfig) {
	cfg.SetDefaults()
	rec := NewServerRecord(cfg)
	m.mu.Lock()
	m.records[cfg.Name] = rec
	m.mu.Unlock()
	if rec.Config.RequiresPerUserAuth() {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, m.timeouts.Discovery)
	defer cancel()
	if err := m.connectShared(dctx, rec); err != nil {
		slog.Warn("mcp server connect failed", "server", rec.Name(), "error", err)
	}
}

// Close tears down every live client.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cl := range m.sharedConns {
		_ = cl.close()
	}
	for _, perUser := range m.userConns {
		for _, cl := range perUser {
			_ = cl.close()
		}
	}
}
