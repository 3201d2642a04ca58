package mcp

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"deepchat/config"
)

// Transport selects how a tool server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
	TransportBuiltin        Transport = "builtin"
)

// ServerConfig describes one tool server the bridge connects to.
type ServerConfig struct {
	ID          string
	Name        string
	Description string
	Transport   Transport
	Command     string
	Args        []string
	Env         map[string]string
	URL         string
	Headers     map[string]string
	Enabled     bool
}

// ServersFromConfig converts the [[mcp_servers]] entries of config.toml.
func ServersFromConfig(entries []config.MCPServerConfig) []ServerConfig {
	servers := make([]ServerConfig, 0, len(entries))
	for _, e := range entries {
		servers = append(servers, ServerConfig{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Transport:   Transport(e.Transport),
			Command:     e.Command,
			Args:        e.Args,
			Env:         e.Env,
			URL:         e.URL,
			Headers:     e.Headers,
			Enabled:     e.Enabled,
		})
	}
	return servers
}

// Warning reports a server skipped during discovery.
type Warning struct {
	ServerID string
	Err      error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.ServerID, w.Err)
}

// session is the part of an MCP client the bridge uses. *client.Client
// satisfies it.
type session interface {
	ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
	Close() error
}
