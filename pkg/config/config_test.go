package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLLMModelConfigYAMLRoundTrip(t *testing.T) {
	in := LLMModelConfig{
		Name:         "gpt-4o",
		Endpoint:     "https://api.openai.com/v1/chat/completions",
		KeySource:    KeySourceUser,
		ExtraHeaders: map[string]string{"X-Org": "acme"},
	}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	var out LLMModelConfig
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestLLMModelConfigSetDefaults(t *testing.T) {
	c := LLMModelConfig{Name: "m"}
	c.SetDefaults()
	assert.Equal(t, KeySourceSystem, c.KeySource)
}

func TestLLMModelConfigValidate(t *testing.T) {
	assert.Error(t, (&LLMModelConfig{}).Validate())
	assert.Error(t, (&LLMModelConfig{Name: "m", KeySource: "bogus"}).Validate())
	assert.NoError(t, (&LLMModelConfig{Name: "m", KeySource: KeySourceSystem}).Validate())
}

func TestServerConfigYAMLRoundTrip(t *testing.T) {
	in := ServerConfig{
		Name:            "filesystem",
		Transport:       TransportStdio,
		Command:         "npx",
		Args:            []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		Env:             map[string]string{"FOO": "bar"},
		AuthType:        AuthBearer,
		Groups:          []string{"admins"},
		RequireApproval: []string{"write_file"},
	}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	var out ServerConfig
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.True(t, out.RequiresPerUserAuth())
}

func TestServerConfigSetDefaultsAndValidate(t *testing.T) {
	c := ServerConfig{Name: "s", AuthType: AuthAPIKey}
	c.SetDefaults()
	assert.Equal(t, "X-API-Key", c.APIKeyHeader)

	assert.Error(t, (&ServerConfig{}).Validate())
	assert.Error(t, (&ServerConfig{Name: "s"}).Validate())
	assert.NoError(t, (&ServerConfig{Name: "s", Command: "run"}).Validate())
}

func TestApprovalPolicyConfigRequiresAdminApproval(t *testing.T) {
	p := ApprovalPolicyConfig{
		PerServerRequireTools: map[string][]string{"filesystem": {"write_file"}},
	}
	assert.True(t, p.RequiresAdminApproval("filesystem", "write_file"))
	assert.False(t, p.RequiresAdminApproval("filesystem", "read_file"))

	forced := ApprovalPolicyConfig{ForceApprovalGlobally: true}
	assert.True(t, forced.RequiresAdminApproval("anything", "anything"))
}

func TestTimeoutConfigSetDefaults(t *testing.T) {
	var timeouts TimeoutConfig
	timeouts.SetDefaults()
	assert.Equal(t, 30*time.Second, timeouts.Discovery)
	assert.Equal(t, 120*time.Second, timeouts.ToolCall)
	assert.Equal(t, 300*time.Second, timeouts.Approval)
	assert.Equal(t, 300*time.Second, timeouts.Elicitation)
	assert.Equal(t, 60*time.Second, timeouts.ReactUserInput)
}

func TestReconnectConfigSetDefaults(t *testing.T) {
	var r ReconnectConfig
	r.SetDefaults()
	assert.Equal(t, 60*time.Second, r.BaseInterval)
	assert.Equal(t, 2.0, r.Multiplier)
	assert.Equal(t, 300*time.Second, r.MaxInterval)
}

func TestReasoningConfigSetDefaults(t *testing.T) {
	var r ReasoningConfig
	r.SetDefaults()
	assert.Equal(t, 10, r.MaxSteps)
}
