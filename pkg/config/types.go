// Package config holds the typed configuration records the core receives
// from an external loader (spec §6 "Configuration inputs" — parsing
// itself is out of scope; these types are the contract).
package config

import (
	"fmt"
	"time"
)

// KeySource identifies where an LLM model's API key comes from.
type KeySource string

const (
	KeySourceSystem KeySource = "system"
	KeySourceUser   KeySource = "user"
)

// LLMModelConfig describes one configured model endpoint.
type LLMModelConfig struct {
	Name         string            `yaml:"name" json:"name"`
	Endpoint     string            `yaml:"endpoint" json:"endpoint"`
	KeySource    KeySource         `yaml:"key_source" json:"key_source"`
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty" json:"extra_headers,omitempty"`
}

func (c *LLMModelConfig) SetDefaults() {
	if c.KeySource == "" {
		c.KeySource = KeySourceSystem
	}
}

func (c *LLMModelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("llm model config: name is required")
	}
	if c.KeySource != KeySourceSystem && c.KeySource != KeySourceUser {
		return fmt.Errorf("llm model config %q: invalid key_source %q", c.Name, c.KeySource)
	}
	return nil
}

// TransportKind identifies how the core reaches a tool server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
	TransportSSE   TransportKind = "sse"
)

// AuthType identifies how a tool server authenticates calls.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthJWT    AuthType = "jwt"
	AuthOAuth  AuthType = "oauth"
)

// ServerConfig describes one external tool server (spec §3 ServerRecord's
// static configuration half; runtime state lives in pkg/mcp.ServerRecord).
type ServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport TransportKind     `yaml:"transport,omitempty" json:"transport,omitempty"`
	Type      string            `yaml:"type,omitempty" json:"type,omitempty"` // legacy fallback, see transport resolution (spec §4.A)
	Command   string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Cwd       string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`

	AuthType        AuthType `yaml:"auth_type,omitempty" json:"auth_type,omitempty"`
	APIKeyHeader    string   `yaml:"api_key_header,omitempty" json:"api_key_header,omitempty"`
	OAuthStartURL   string   `yaml:"oauth_start_url,omitempty" json:"oauth_start_url,omitempty"`
	JWKSURL         string   `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`
	JWTIssuer       string   `yaml:"jwt_issuer,omitempty" json:"jwt_issuer,omitempty"`
	JWTAudience     string   `yaml:"jwt_audience,omitempty" json:"jwt_audience,omitempty"`

	Groups          []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	RequireApproval []string `yaml:"require_approval,omitempty" json:"require_approval,omitempty"`
	ComplianceLevel string   `yaml:"compliance_level,omitempty" json:"compliance_level,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.AuthType == "" {
		c.AuthType = AuthNone
	}
	if c.AuthType == AuthAPIKey && c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-API-Key"
	}
}

func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server config: name is required")
	}
	if c.Command == "" && c.URL == "" {
		return fmt.Errorf("server config %q: either command or url is required", c.Name)
	}
	return nil
}

// RequiresPerUserAuth reports whether calls to this server must be made
// with a caller-scoped credential (spec §4.A "Per-user auth").
func (c ServerConfig) RequiresPerUserAuth() bool {
	switch c.AuthType {
	case AuthAPIKey, AuthBearer, AuthJWT, AuthOAuth:
		return true
	default:
		return false
	}
}

// ApprovalPolicyConfig captures the global/per-tool approval rules
// consulted by the Tool Executor (spec §4.C step 5).
type ApprovalPolicyConfig struct {
	ForceApprovalGlobally bool            `yaml:"force_approval_globally,omitempty" json:"force_approval_globally,omitempty"`
	PerServerRequireTools map[string][]string `yaml:"per_server_require_tools,omitempty" json:"per_server_require_tools,omitempty"`
}

// RequiresAdminApproval reports whether toolName on serverName is
// admin-forced to require approval (the user cannot override this).
func (p ApprovalPolicyConfig) RequiresAdminApproval(serverName, toolName string) bool {
	if p.ForceApprovalGlobally {
		return true
	}
	for _, name := range p.PerServerRequireTools[serverName] {
		if name == toolName {
			return true
		}
	}
	return false
}

// TimeoutConfig collects the bounded deadlines used across the engine
// (spec §5 "Suspension points").
type TimeoutConfig struct {
	Discovery        time.Duration `yaml:"discovery,omitempty" json:"discovery,omitempty"`
	ToolCall         time.Duration `yaml:"tool_call,omitempty" json:"tool_call,omitempty"`
	Approval         time.Duration `yaml:"approval,omitempty" json:"approval,omitempty"`
	Elicitation      time.Duration `yaml:"elicitation,omitempty" json:"elicitation,omitempty"`
	ReactUserInput   time.Duration `yaml:"react_user_input,omitempty" json:"react_user_input,omitempty"`
}

func (t *TimeoutConfig) SetDefaults() {
	if t.Discovery == 0 {
		t.Discovery = 30 * time.Second
	}
	if t.ToolCall == 0 {
		t.ToolCall = 120 * time.Second
	}
	if t.Approval == 0 {
		t.Approval = 300 * time.Second
	}
	if t.Elicitation == 0 {
		t.Elicitation = 300 * time.Second
	}
	if t.ReactUserInput == 0 {
		t.ReactUserInput = 60 * time.Second
	}
}

// ReconnectConfig tunes the Connection Manager's backoff schedule (spec
// §4.A "Failure tracking").
type ReconnectConfig struct {
	BaseInterval time.Duration `yaml:"base_interval,omitempty" json:"base_interval,omitempty"`
	Multiplier   float64       `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	MaxInterval  time.Duration `yaml:"max_interval,omitempty" json:"max_interval,omitempty"`
	// BackgroundLoop enables the opt-in reconnect loop (spec §4.A entry point 1).
	BackgroundLoop bool `yaml:"background_loop,omitempty" json:"background_loop,omitempty"`
}

func (r *ReconnectConfig) SetDefaults() {
	if r.BaseInterval == 0 {
		r.BaseInterval = 60 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = 300 * time.Second
	}
}

// ReasoningConfig configures an agent loop strategy instance (spec §4.F).
type ReasoningConfig struct {
	Strategy        string        `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	MaxSteps        int           `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	Temperature     float64       `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	EnableStreaming bool          `yaml:"enable_streaming,omitempty" json:"enable_streaming,omitempty"`
}

func (r *ReasoningConfig) SetDefaults() {
	if r.MaxSteps == 0 {
		r.MaxSteps = 10
	}
}
