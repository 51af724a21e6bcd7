// Package mcpbridge turns tools of configured MCP servers into capability
// providers, so an operator can add an integration with one config entry
// and no code. Tool names are prefixed with the server name to keep the
// registry's global namespace collision-free.
package mcpbridge

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

// ServerConfig represents configuration for a single MCP server
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Config represents the MCP configuration file structure
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// Provider bridges one connected MCP server into the capability registry
type Provider struct {
	serverName string
	session    *mcp.ClientSession
	defs       []capability.Definition
	toolByName map[string]string // capability name -> original MCP tool name
}

var _ capability.Provider = (*Provider)(nil)

// LoadAndConnect reads the YAML config and connects to every listed
// server, returning one provider per successful connection. A server that
// fails to connect is logged and skipped; a missing config path yields no
// providers and no error.
func LoadAndConnect(ctx context.Context, configPath string) ([]*Provider, error) {
	if configPath == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve config path", goerr.V("path", configPath))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP config file", goerr.V("path", absPath))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP config file", goerr.V("path", absPath))
	}

	logger := logging.From(ctx)
	var providers []*Provider
	for _, serverCfg := range cfg.Servers {
		provider, err := connect(ctx, serverCfg)
		if err != nil {
			logger.Warn("failed to connect to MCP server, skipping",
				"server", serverCfg.Name, "error", err)
			continue
		}
		logger.Info("connected to MCP server",
			"server", serverCfg.Name, "capabilities", len(provider.defs))
		providers = append(providers, provider)
	}
	return providers, nil
}

func connect(ctx context.Context, cfg ServerConfig) (*Provider, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "stride",
		Version: "0.1.0",
	}, nil)

	transport, err := createTransport(cfg)
	if err != nil {
		return nil, err
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	toolsResult, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return nil, goerr.Wrap(err, "failed to list tools", goerr.V("server", cfg.Name))
	}

	p := &Provider{
		serverName: cfg.Name,
		session:    session,
		toolByName: make(map[string]string, len(toolsResult.Tools)),
	}

	for _, t := range toolsResult.Tools {
		def, err := toDefinition(cfg.Name, t)
		if err != nil {
			session.Close()
			return nil, goerr.Wrap(err, "failed to convert tool",
				goerr.V("server", cfg.Name), goerr.V("tool", t.Name))
		}
		p.defs = append(p.defs, def)
		p.toolByName[def.Name] = t.Name
	}

	return p, nil
}

func createTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return nil, goerr.New("command is required for stdio transport")
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		if len(cfg.Env) > 0 {
			env := cmd.Env
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case "http":
		if cfg.URL == "" {
			return nil, goerr.New("url is required for http transport")
		}
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil

	default:
		return nil, goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}
}

// toDefinition converts an MCP tool into a capability definition. Bridged
// tools are conservatively marked side-effecting unless the server
// annotates them read-only, so the guard policy covers them.
func toDefinition(serverName string, t *mcp.Tool) (capability.Definition, error) {
	def := capability.Definition{
		Name:        serverName + "_" + t.Name,
		Description: t.Description,
		SideEffect:  true,
	}
	if t.Annotations != nil && t.Annotations.ReadOnlyHint {
		def.SideEffect = false
	}

	if t.InputSchema != nil {
		// InputSchema is loosely typed; round-trip through JSON to get a
		// jsonschema.Schema
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return def, goerr.Wrap(err, "failed to marshal input schema")
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return def, goerr.Wrap(err, "failed to unmarshal input schema")
		}
		def.Parameters = &schema
	}
	return def, nil
}

func (p *Provider) Name() string {
	return "mcp:" + p.serverName
}

func (p *Provider) Capabilities() []capability.Definition {
	return p.defs
}

func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	toolName, ok := p.toolByName[name]
	if !ok {
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}

	result, err := p.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool",
			goerr.V("server", p.serverName), goerr.V("tool", toolName))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal MCP result")
	}

	if result.IsError {
		return &capability.Result{
			Success: false,
			Error:   string(payload),
		}, nil
	}
	return capability.Succeed(map[string]any{"result": string(payload)}), nil
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	return p.session.Ping(ctx, nil) == nil
}

// Close terminates the server session
func (p *Provider) Close() error {
	if err := p.session.Close(); err != nil {
		return goerr.Wrap(err, "failed to close session", goerr.V("server", p.serverName))
	}
	return nil
}
