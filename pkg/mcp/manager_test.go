package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/pkg/auth"
	"github.com/flowforge/agentcore/pkg/config"
)

// fakeClient is an in-memory client double used across manager tests.
type fakeClient struct {
	connectErr error
	tools      []ToolDescriptor
	callResult *ToolCallResult
	callErr    error
	connected  bool
	lastArgs   map[string]interface{}
}

func (f *fakeClient) connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}
func (f *fakeClient) listTools(ctx context.Context) ([]ToolDescriptor, error) { return f.tools, nil }
func (f *fakeClient) listPrompts(ctx context.Context) ([]PromptDescriptor, error) { return nil, nil }
func (f *fakeClient) callTool(ctx context.Context, name string, args map[string]interface{}, sink ProgressSink) (*ToolCallResult, error) {
	f.lastArgs = args
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callResult != nil {
		return f.callResult, nil
	}
	return &ToolCallResult{Text: "ok"}, nil
}
func (f *fakeClient) close() error { return nil }

func withFakeClient(t *testing.T, fc *fakeClient) {
	t.Helper()
	orig := newClientFor
	newClientFor = func(cfg config.ServerConfig) (client, error) { return fc, nil }
	t.Cleanup(func() { newClientFor = orig })
}

func testTimeouts() config.TimeoutConfig {
	tc := config.TimeoutConfig{}
	tc.SetDefaults()
	return tc
}

func TestManagerInitializeConnectsSharedServers(t *testing.T) {
	fc := &fakeClient{tools: []ToolDescriptor{{Name: "echo"}}}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", Command: "run"}}
	mgr := NewManager(servers, config.ReconnectConfig{}, testTimeouts(), nil, nil)
	mgr.Initialize(context.Background())

	rec, ok := mgr.Server("s1")
	require.True(t, ok)
	assert.Equal(t, StateConnected, rec.State())
	assert.Len(t, rec.Tools(), 1)
	assert.True(t, fc.connected)
}

func TestManagerInitializeMarksFailure(t *testing.T) {
	fc := &fakeClient{connectErr: fmt.Errorf("boom")}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", Command: "run"}}
	mgr := NewManager(servers, config.ReconnectConfig{}, testTimeouts(), nil, nil)
	mgr.Initialize(context.Background())

	rec, _ := mgr.Server("s1")
	assert.Equal(t, StateFailed, rec.State())
	assert.Equal(t, 1, rec.Failure().AttemptCount)
}

func TestManagerCallToolDispatchesToConnectedServer(t *testing.T) {
	fc := &fakeClient{callResult: &ToolCallResult{Text: "done"}}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", Command: "run"}}
	mgr := NewManager(servers, config.ReconnectConfig{}, testTimeouts(), nil, nil)
	mgr.Initialize(context.Background())

	result, err := mgr.CallTool(context.Background(), "user@example.com", "s1", "echo", map[string]interface{}{"x": 1}, "call-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 1, fc.lastArgs["x"])
}

func TestManagerCallToolUnknownServer(t *testing.T) {
	mgr := NewManager(nil, config.ReconnectConfig{}, testTimeouts(), nil, nil)
	_, err := mgr.CallTool(context.Background(), "u", "missing", "tool", nil, "call-1", nil)
	assert.Error(t, err)
}

func TestManagerCallToolRequiresAuthWhenTokenMissing(t *testing.T) {
	fc := &fakeClient{}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", URL: "https://example.test", AuthType: config.AuthBearer}}
	store := auth.NewMemoryTokenStorage()
	mgr := NewManager(servers, config.ReconnectConfig{}, testTimeouts(), store, nil)
	mgr.Initialize(context.Background())

	_, err := mgr.CallTool(context.Background(), "user@example.com", "s1", "echo", nil, "call-1", nil)
	require.Error(t, err)
	var authErr *AuthenticationRequiredError
	assert.ErrorAs(t, err, &authErr)
}

func TestManagerCallToolSucceedsOncePerUserTokenStored(t *testing.T) {
	fc := &fakeClient{callResult: &ToolCallResult{Text: "ok"}}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", URL: "https://example.test", AuthType: config.AuthBearer}}
	store := auth.NewMemoryTokenStorage()
	require.NoError(t, store.StoreToken(context.Background(), auth.StoredToken{ServerName: "s1", UserEmail: "user@example.com", Token: "tok-123", ExpiresAt: time.Now().Add(time.Hour)}))

	mgr := NewManager(servers, config.ReconnectConfig{}, testTimeouts(), store, nil)
	mgr.Initialize(context.Background())

	result, err := mgr.CallTool(context.Background(), "user@example.com", "s1", "echo", nil, "call-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
}

func TestManagerReconnectRespectsBackoffUnlessForced(t *testing.T) {
	fc := &fakeClient{connectErr: fmt.Errorf("down")}
	withFakeClient(t, fc)

	servers := []config.ServerConfig{{Name: "s1", Command: "run"}}
	reconnectCfg := config.ReconnectConfig{BaseInterval: time.Minute, Multiplier: 2, MaxInterval: time.Hour}
	mgr := NewManager(servers, reconnectCfg, testTimeouts(), nil, nil)
	mgr.Initialize(context.Background())

	err := mgr.Reconnect(context.Background(), "s1", false)
	assert.Error(t, err)

	err = mgr.Reconnect(context.Background(), "s1", true)
	assert.Error(t, err) // still fails to connect, but shouldn't be rejected for backoff reasons
	assert.NotContains(t, err.Error(), "not yet due for reconnect")
}
