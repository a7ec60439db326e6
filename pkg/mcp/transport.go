package mcp

import (
	"fmt"

	"github.com/flowforge/agentcore/pkg/config"
)

// resolveTransport applies the priority order spec §4.A lays out:
//
//  1. an explicit transport field wins outright
//  2. a command with no explicit transport implies stdio
//  3. a url with no explicit transport implies http, unless the url
//     scheme suggests sse is wanted (handled by the legacy type field)
//  4. the legacy type field, when set and transport is not
//  5. stdio, as the default when nothing else matched
func resolveTransport(cfg config.ServerConfig) (config.TransportKind, error) {
	if cfg.Transport != "" {
		return cfg.Transport, nil
	}
	if cfg.Command != "" {
		return config.TransportStdio, nil
	}
	if cfg.URL != "" {
		switch cfg.Type {
		case "sse":
			return config.TransportSSE, nil
		case "http", "":
			return config.TransportHTTP, nil
		default:
			return "", fmt.Errorf("server %q: unknown legacy type %q for url transport", cfg.Name, cfg.Type)
		}
	}
	if cfg.Type != "" {
		switch cfg.Type {
		case "stdio":
			return config.TransportStdio, nil
		case "http":
			return config.TransportHTTP, nil
		case "sse":
			return config.TransportSSE, nil
		default:
			return "", fmt.Errorf("server %q: unknown legacy type %q", cfg.Name, cfg.Type)
		}
	}
	return config.TransportStdio, nil
}
