// Command agentcore wires one agent loop turn end to end against a
// single MCP-style tool server.
//
// Usage:
//
//	agentcore run --model gpt-4o --endpoint https://api.openai.com/v1/chat/completions \
//	  --server-name filesystem --server-command "npx -y @modelcontextprotocol/server-filesystem /tmp" \
//	  --message "list the files in /tmp"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowforge/agentcore/internal/toolindex"
	"github.com/flowforge/agentcore/pkg/approval"
	"github.com/flowforge/agentcore/pkg/auth"
	"github.com/flowforge/agentcore/pkg/config"
	"github.com/flowforge/agentcore/pkg/events"
	"github.com/flowforge/agentcore/pkg/executor"
	"github.com/flowforge/agentcore/pkg/llms"
	"github.com/flowforge/agentcore/pkg/llms/reference"
	"github.com/flowforge/agentcore/pkg/mcp"
	"github.com/flowforge/agentcore/pkg/observability"
	"github.com/flowforge/agentcore/pkg/reasoning"
	"github.com/flowforge/agentcore/pkg/session"
	"github.com/flowforge/agentcore/pkg/streaming"
)

// CLI is the top-level command set.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a single agent loop turn against one tool server."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
}

// VersionCmd prints the build version, if known.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("agentcore (dev build)")
	return nil
}

// RunCmd constructs the Connection Manager, Tool Executor, Streaming
// Adapter, and a reasoning strategy, then runs exactly one turn and
// prints the final answer. It is a wiring demonstration, not a server:
// configuration file parsing is out of scope for this module (see
// pkg/config's package doc), so every input the server-level operator
// would normally load from a config file is a flag here instead.
type RunCmd struct {
	Model     string `help:"Model name passed to the provider." required:""`
	Endpoint  string `help:"Chat-completions endpoint URL." required:""`
	APIKeyEnv string `name:"api-key-env" help:"Environment variable holding the provider API key." default:"AGENTCORE_API_KEY"`

	ServerName    string `name:"server-name" help:"Tool server name." required:""`
	ServerCommand string `name:"server-command" help:"Tool server stdio command, space-separated (e.g. 'npx -y some-mcp-server')."`
	ServerURL     string `name:"server-url" help:"Tool server HTTP(S)/SSE URL, instead of --server-command."`

	Strategy  string `default:"react" enum:"act,react,think-act,agentic" help:"Agent loop strategy."`
	MaxSteps  int    `name:"max-steps" default:"10" help:"Maximum agent loop steps."`
	Message   string `required:"" help:"The user message to run."`
	SessionID string `name:"session-id" default:"cli-session"`
	UserEmail string `name:"user-email" default:"cli@local"`

	MetricsAddr string `name:"metrics-addr" help:"If set, serve Prometheus metrics on this address while the turn runs (e.g. :9090)."`
}

func (c *RunCmd) Run() error {
	ctx := context.Background()

	obs, err := observability.New("agentcore")
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if c.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(obs.Registry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(c.MetricsAddr, mux); err != nil {
				slog.Error("metrics server exited", "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", c.MetricsAddr)
	}

	serverCfg := config.ServerConfig{Name: c.ServerName, URL: c.ServerURL}
	if c.ServerCommand != "" {
		parts := strings.Fields(c.ServerCommand)
		serverCfg.Command = parts[0]
		serverCfg.Args = parts[1:]
		serverCfg.Transport = config.TransportStdio
	} else {
		serverCfg.Transport = config.TransportHTTP
	}
	serverCfg.SetDefaults()
	if err := serverCfg.Validate(); err != nil {
		return err
	}

	reconnectCfg := config.ReconnectConfig{}
	reconnectCfg.SetDefaults()
	timeoutCfg := config.TimeoutConfig{}
	timeoutCfg.SetDefaults()
	approvalPolicy := config.ApprovalPolicyConfig{}

	sink := events.SinkFunc(logSink)

	tokens := auth.NewMemoryTokenStorage()
	manager := mcp.NewManager([]config.ServerConfig{serverCfg}, reconnectCfg, timeoutCfg, tokens, sink)
	manager.Initialize(ctx)
	defer manager.Close()

	index := toolindex.New()
	index.Refresh(manager.Servers())

	broker := approval.NewBroker()
	exec := executor.New(manager, index, broker, approvalPolicy, timeoutCfg, sink)

	modelCfg := config.LLMModelConfig{Name: c.Model, Endpoint: c.Endpoint, KeySource: config.KeySourceSystem}
	modelCfg.SetDefaults()
	caller := reference.New(modelCfg, os.Getenv(c.APIKeyEnv))

	stream := streaming.New(caller, nil)

	factory := reasoning.NewFactory(reasoning.Deps{
		Caller:   caller,
		Stream:   stream,
		Executor: exec,
		Sink:     sink,
		Obs:      obs,
	})
	strategy, err := factory.CreateStrategy(c.Strategy)
	if err != nil {
		return err
	}

	sessCtx := session.Context{SessionID: c.SessionID, UserEmail: c.UserEmail}
	result, err := strategy.Run(ctx, reasoning.Input{
		Model:         c.Model,
		Messages:      []llms.Message{{Role: "user", Content: c.Message}},
		Context:       sessCtx,
		SelectedTools: toolDefinitions(index, manager.Servers()),
		MaxSteps:      c.MaxSteps,
	})
	if err != nil {
		return fmt.Errorf("agent turn: %w", err)
	}

	fmt.Println(result.FinalAnswer)
	slog.Info("turn complete", "strategy", strategy.Name(), "steps", result.Steps)
	return nil
}

// toolDefinitions flattens every currently-indexed tool across servers
// into the llms.ToolDefinition shape the agent loop strategies consume,
// prefixing each name with its owning server per spec §3's
// server_tool naming convention.
func toolDefinitions(index *toolindex.Index, servers []*mcp.ServerRecord) []llms.ToolDefinition {
	var defs []llms.ToolDefinition
	for _, rec := range servers {
		for _, t := range rec.Tools() {
			fq := toolindex.FQName(rec.Name(), t.Name)
			if _, ok := index.Lookup(fq); !ok {
				continue
			}
			defs = append(defs, llms.ToolDefinition{
				Name:        fq,
				Description: t.Description,
				Parameters:  t.Schema,
			})
		}
	}
	return defs
}

func logSink(ctx context.Context, ev events.Event) {
	slog.Debug("event", "type", string(ev.Type))
}

func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	var cli CLI
	parser := kong.Must(&cli, kong.Name("agentcore"), kong.Description("Run LLM agent loop turns against MCP-style tool servers."))
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	configureLogging(cli.LogLevel)

	parser.FatalIfErrorf(kctx.Run())
}
