package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"deepchat/config"
	"deepchat/storage"
)

var (
	ErrNameRequired    = errors.New("name and description are required")
	ErrDuplicateServer = errors.New("a server with this name already exists")
	ErrNotInstalled    = errors.New("server is not installed")
	ErrUnknownServer   = errors.New("unknown server")
)

// Server is a catalog entry: a known tool server and its local state.
type Server struct {
	ServerConfig
	Repo      string
	Installed bool
	Custom    bool
}

// ServerStore persists catalog state. *storage.ServerStore implements it.
type ServerStore interface {
	ListServers(ctx context.Context) ([]storage.ServerRecord, error)
	SaveServer(ctx context.Context, rec storage.ServerRecord) error
}

// seedServers are the servers every catalog starts with.
func seedServers() []Server {
	timeServer := TimeServerConfig()
	timeServer.Enabled = false

	return []Server{
		{
			ServerConfig: ServerConfig{
				ID:          "web-search",
				Name:        "Web Search",
				Description: "Enables the model to search the web using various search engines.",
				Transport:   TransportStdio,
			},
			Repo: "https://github.com/mcp-ai/web-search-mcp-server",
		},
		{
			ServerConfig: ServerConfig{
				ID:          "code-interpreter",
				Name:        "Code Interpreter",
				Description: "A Node.js code interpreter for executing code.",
				Transport:   TransportStdio,
			},
			Repo: "https://github.com/mcp-ai/node-code-interpreter-mcp-server",
		},
		{
			ServerConfig: timeServer,
			Repo:         "https://github.com/model-context-protocol/time",
		},
		{
			ServerConfig: ServerConfig{
				ID:          "puppeteer",
				Name:        "Puppeteer",
				Description: "Browser automation and web scraping.",
				Transport:   TransportStdio,
				Command:     "npx",
				Args:        []string{"-y", "@modelcontextprotocol/server-puppeteer"},
			},
			Repo: "https://github.com/model-context-protocol/puppeteer",
		},
		{
			ServerConfig: ServerConfig{
				ID:          "serper-mcp-server",
				Name:        "Serper Search",
				Description: "A Google Search API connector via serper.dev.",
				Transport:   TransportStdio,
				Command:     "uvx",
				Args:        []string{"serper-mcp-server"},
			},
			Repo: "https://github.com/garymeng/serper-mcp-server",
		},
	}
}

// ServerRegistry is the catalog of known tool servers. Install marks a
// server available; only installed servers can be enabled, and enabled
// servers are what the Bridge connects to.
type ServerRegistry struct {
	mu      sync.RWMutex
	store   ServerStore
	servers []Server
}

// NewServerRegistry seeds the catalog and overlays the state saved in store.
// store may be nil, in which case nothing is persisted.
func NewServerRegistry(ctx context.Context, store ServerStore) (*ServerRegistry, error) {
	r := &ServerRegistry{store: store, servers: seedServers()}
	if store == nil {
		return r, nil
	}

	records, err := store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load server registry: %w", err)
	}
	for _, rec := range records {
		srv := fromRecord(rec)
		if i := r.index(srv.ID); i >= 0 {
			if r.servers[i].Transport != TransportBuiltin {
				r.servers[i].ServerConfig = srv.ServerConfig
			}
			r.servers[i].Installed = srv.Installed
			r.servers[i].Enabled = srv.Enabled
			continue
		}
		r.servers = append(r.servers, srv)
	}

	return r, nil
}

func (r *ServerRegistry) index(id string) int {
	for i, s := range r.servers {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// List returns every server, seeds first, then custom servers in the order
// they were added.
func (r *ServerRegistry) List() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Server, len(r.servers))
	copy(out, r.servers)
	return out
}

// Get returns the server with id.
func (r *ServerRegistry) Get(id string) (Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.index(id); i >= 0 {
		return r.servers[i], true
	}
	return Server{}, false
}

// Install marks a server as installed. It does not enable it.
func (r *ServerRegistry) Install(ctx context.Context, id string) error {
	return r.update(ctx, id, func(s *Server) error {
		s.Installed = true
		return nil
	})
}

// SetEnabled starts or stops routing to a server. Only installed servers
// can be enabled.
func (r *ServerRegistry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, func(s *Server) error {
		if enabled && !s.Installed {
			return fmt.Errorf("%s: %w", id, ErrNotInstalled)
		}
		s.Enabled = enabled
		return nil
	})
}

func (r *ServerRegistry) update(ctx context.Context, id string, fn func(*Server) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrUnknownServer)
	}

	next := r.servers[i]
	if err := fn(&next); err != nil {
		return err
	}
	if err := r.save(ctx, next); err != nil {
		return err
	}
	r.servers[i] = next

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Server '%s' installed=%v enabled=%v", id, next.Installed, next.Enabled)
	}
	return nil
}

// Configure sets how a server is launched. For stdio servers target is a
// command line; for sse and streamable-http it is the server URL.
func (r *ServerRegistry) Configure(ctx context.Context, id string, transport Transport, target string, env map[string]string) error {
	next := ServerConfig{Transport: transport, Env: env}
	switch transport {
	case TransportStdio, "":
		argv, err := SplitCommandLine(target)
		if err != nil {
			return err
		}
		if len(argv) == 0 {
			return fmt.Errorf("%s: empty command", id)
		}
		next.Transport = TransportStdio
		next.Command, next.Args = argv[0], argv[1:]
	case TransportSSE, TransportStreamableHTTP:
		next.URL = target
		if err := CheckLauncher(next); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	default:
		return fmt.Errorf("%s: transport %q cannot be configured", id, transport)
	}

	return r.update(ctx, id, func(s *Server) error {
		if s.Transport == TransportBuiltin {
			return fmt.Errorf("%s: builtin servers cannot be reconfigured", id)
		}
		s.Transport = next.Transport
		s.Command, s.Args = next.Command, next.Args
		s.URL = next.URL
		s.Env = next.Env
		return nil
	})
}

// AddCustom registers a user-defined server. The ID is derived from the
// name by lowercasing it and replacing spaces with dashes.
func (r *ServerRegistry) AddCustom(ctx context.Context, name, description, repo string) (Server, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		return Server{}, ErrNameRequired
	}

	srv := Server{
		ServerConfig: ServerConfig{
			ID:          CustomServerID(name),
			Name:        name,
			Description: description,
			Transport:   TransportStdio,
		},
		Repo:   strings.TrimSpace(repo),
		Custom: true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(srv.ID) >= 0 {
		return Server{}, ErrDuplicateServer
	}
	if err := r.save(ctx, srv); err != nil {
		return Server{}, err
	}
	r.servers = append(r.servers, srv)
	return srv, nil
}

// CustomServerID derives a catalog key from a display name.
func CustomServerID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Enabled returns the configs of installed, enabled servers.
func (r *ServerRegistry) Enabled() []ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServerConfig
	for _, s := range r.servers {
		if s.Installed && s.Enabled {
			out = append(out, s.ServerConfig)
		}
	}
	return out
}

func (r *ServerRegistry) save(ctx context.Context, s Server) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveServer(ctx, toRecord(s)); err != nil {
		return fmt.Errorf("failed to save server %s: %w", s.ID, err)
	}
	return nil
}

func toRecord(s Server) storage.ServerRecord {
	return storage.ServerRecord{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Repo:        s.Repo,
		Transport:   string(s.Transport),
		Command:     s.Command,
		Args:        s.Args,
		Env:         s.Env,
		URL:         s.URL,
		Installed:   s.Installed,
		Enabled:     s.Enabled,
		Custom:      s.Custom,
	}
}

func fromRecord(rec storage.ServerRecord) Server {
	return Server{
		ServerConfig: ServerConfig{
			ID:          rec.ID,
			Name:        rec.Name,
			Description: rec.Description,
			Transport:   Transport(rec.Transport),
			Command:     rec.Command,
			Args:        rec.Args,
			Env:         rec.Env,
			URL:         rec.URL,
			Enabled:     rec.Enabled,
		},
		Repo:      rec.Repo,
		Installed: rec.Installed,
		Custom:    rec.Custom,
	}
}
