package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/agentcore/pkg/config"
)

func TestResolveTransportExplicitWins(t *testing.T) {
	cfg := config.ServerConfig{Name: "s", Transport: config.TransportSSE, Command: "ignored"}
	kind, err := resolveTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.TransportSSE, kind)
}

func TestResolveTransportCommandImpliesStdio(t *testing.T) {
	cfg := config.ServerConfig{Name: "s", Command: "run-server"}
	kind, err := resolveTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.TransportStdio, kind)
}

func TestResolveTransportURLImpliesHTTP(t *testing.T) {
	cfg := config.ServerConfig{Name: "s", URL: "https://example.test/mcp"}
	kind, err := resolveTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.TransportHTTP, kind)
}

func TestResolveTransportLegacyTypeSSE(t *testing.T) {
	cfg := config.ServerConfig{Name: "s", URL: "https://example.test/mcp", Type: "sse"}
	kind, err := resolveTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.TransportSSE, kind)
}

func TestResolveTransportDefaultsToStdio(t *testing.T) {
	cfg := config.ServerConfig{Name: "s"}
	kind, err := resolveTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.TransportStdio, kind)
}
