package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	globalconfig "deepchat/config"
)

// protocolVersion is the MCP revision announced during the handshake.
const protocolVersion = "2025-06-18"

// connector opens and initializes a session for one server. Transports are
// started on life, which must outlive the session; the handshake uses ctx.
type connector func(life, ctx context.Context, cfg ServerConfig) (session, error)

// newConnector returns the default connector. Builtin servers are looked up
// by server ID in builtins.
func newConnector(builtins map[string]*server.MCPServer) connector {
	return func(life, ctx context.Context, cfg ServerConfig) (session, error) {
		var mcpClient *client.Client
		var err error

		switch cfg.Transport {
		case TransportStdio, "":
			mcpClient, err = createStdioClient(cfg)
		case TransportSSE:
			mcpClient, err = createSSEClient(life, cfg)
		case TransportStreamableHTTP:
			mcpClient, err = createStreamableHTTPClient(life, cfg)
		case TransportBuiltin:
			mcpClient, err = createInProcessClient(life, cfg, builtins)
		default:
			return nil, fmt.Errorf("unknown transport type: %s", cfg.Transport)
		}
		if err != nil {
			return nil, err
		}

		if err := initialize(ctx, mcpClient); err != nil {
			mcpClient.Close()
			return nil, fmt.Errorf("failed to initialize server %s: %w", cfg.ID, err)
		}

		switch {
		case globalconfig.DebugLog != nil:
			globalconfig.DebugLog.Printf("[MCP] Connected to server '%s' (transport: %s)", cfg.ID, cfg.Transport)
		}

		return mcpClient, nil
	}
}

func initialize(ctx context.Context, c *client.Client) error {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "DeepChat",
				Version: "1.0.0",
			},
		},
	}
	_, err := c.Initialize(ctx, initReq)
	return err
}

// createStdioClient spawns the server process. The stdio client starts its
// transport on creation.
func createStdioClient(cfg ServerConfig) (*client.Client, error) {
	switch {
	case cfg.Command == "":
		return nil, fmt.Errorf("server %s: command is required for stdio transport", cfg.ID)
	}

	env := configToEnv(cfg.Env)

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env

		switch {
		case globalconfig.DebugLog != nil:
			globalconfig.DebugLog.Printf("[MCP] Starting '%s': %s %v", cfg.ID, command, args)
		}

		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		env,
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start server %s: %w", cfg.ID, err)
	}
	return mcpClient, nil
}

func createSSEClient(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	var opts []transport.ClientOption
	switch {
	case len(cfg.Headers) > 0:
		opts = append(opts, transport.WithHeaders(cfg.Headers))
	}

	mcpClient, err := client.NewSSEMCPClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server %s: %w", cfg.ID, err)
	}

	// SSE must be started before Initialize.
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}
	return mcpClient, nil
}

func createStreamableHTTPClient(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	switch {
	case len(cfg.Headers) > 0:
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server %s: %w", cfg.ID, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}
	return mcpClient, nil
}

func createInProcessClient(ctx context.Context, cfg ServerConfig, builtins map[string]*server.MCPServer) (*client.Client, error) {
	srv, ok := builtins[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("no builtin server named %q", cfg.ID)
	}

	mcpClient, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start in-process transport: %w", err)
	}
	return mcpClient, nil
}

// configToEnv layers server-specific variables over the current process
// environment so PATH and friends survive.
func configToEnv(envMap map[string]string) []string {
	env := os.Environ()
	for k, v := range envMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
