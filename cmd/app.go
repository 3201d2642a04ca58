package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"deepchat/catalog"
	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
	"deepchat/orchestrator"
	"deepchat/provider"
	"deepchat/settings"
	"deepchat/storage"
)

// historyBackend is what the commands need from conversation storage.
// *storage.SQLiteStore and *storage.MemoryStore implement it.
type historyBackend interface {
	orchestrator.HistoryStore
	orchestrator.ConversationStore
	Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	Export(ctx context.Context, id string, w io.Writer) error
}

type appOptions struct {
	dataDir   string
	debug     bool
	ephemeral bool
}

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	creds    *config.CredentialStore
	registry *provider.Registry
	catalog  *catalog.Catalog
	history  historyBackend
	servers  *mcp.ServerRegistry
	settings *settings.Service

	db     *storage.SQLiteStore
	bridge *mcp.Bridge
	stop   context.CancelFunc
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	dataDir := config.ResolveDataDir(opts.dataDir)
	if err := config.EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	config.InitDebugLog(dataDir, opts.debug)

	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}

	creds := config.NewCredentialStore(cfg.Security.CredentialStorage, cfg.Security.SSHKeyPath)
	if passphrase := os.Getenv("DEEPCHAT_SSH_PASSPHRASE"); passphrase != "" {
		creds.SetPassphrase(passphrase)
	}
	if err := creds.Load(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	registry := provider.NewRegistry(cfg.Providers, provider.Options{
		MaxRetries:        2,
		RequestsPerMinute: cfg.Chat.RequestsPerMinute,
	})
	cat := catalog.New(registry, creds)
	creds.OnChange(cat.Invalidate)
	registry.OnChange(cat.Invalidate)

	a := &app{
		cfg:      cfg,
		creds:    creds,
		registry: registry,
		catalog:  cat,
		settings: settings.NewService(creds, registry, cat, cfg),
	}

	var serverStore mcp.ServerStore
	if opts.ephemeral {
		a.history = storage.NewMemoryStore()
	} else {
		db, err := storage.Open(config.HistoryDBPath(cfg.DataDir()))
		if err != nil {
			return nil, err
		}
		a.db = db
		a.history = db
		serverStore = db.Servers()
	}

	a.servers, err = mcp.NewServerRegistry(ctx, serverStore)
	if err != nil {
		a.Close()
		return nil, err
	}

	watchCtx, stop := context.WithCancel(ctx)
	a.stop = stop
	if err := config.WatchCredentials(watchCtx, creds, cfg.DataDir(), config.DefaultReloadDebounce); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[App] Credential watcher not started: %v", err)
	}

	return a, nil
}

// Bridge builds the tool bridge over the enabled registry servers plus the
// servers listed in config.toml, and runs discovery.
func (a *app) Bridge(ctx context.Context) (*mcp.Bridge, []mcp.Warning, error) {
	if a.bridge != nil {
		return a.bridge, nil, nil
	}

	timeServer, err := mcp.NewTimeServer(nil)
	if err != nil {
		return nil, nil, err
	}

	servers := append(a.servers.Enabled(), mcp.ServersFromConfig(a.cfg.MCPServers)...)
	a.bridge = mcp.NewBridge(servers, mcp.BridgeOptions{
		ToolTimeout: a.cfg.Chat.ToolTimeout.Duration,
		Builtins:    map[string]*server.MCPServer{mcp.TimeServerID: timeServer},
	})
	_, warnings := a.bridge.Discover(ctx)
	return a.bridge, warnings, nil
}

// Manager builds a conversation manager wired to every component.
func (a *app) Manager(tools orchestrator.ToolSource, onEvent func(orchestrator.Event)) *orchestrator.Manager {
	deps := orchestrator.Deps{
		Providers:   a.registry,
		Credentials: a.creds,
		Tools:       tools,
		Models:      a.catalog,
		History:     a.history,
	}
	return orchestrator.NewManager(deps, a.history, orchestrator.Options{
		MaxToolIterations: a.cfg.Chat.MaxToolIterations,
		StreamIdleTimeout: a.cfg.Chat.StreamIdleTimeout.Duration,
		OnEvent:           onEvent,
	})
}

// DefaultSelection is the model new conversations start on.
func (a *app) DefaultSelection(flag string) (model.Selection, error) {
	if flag != "" {
		return model.ParseSelection(flag)
	}
	sel := a.cfg.Selection()
	if sel.IsZero() {
		return model.Selection{}, errors.New("no default model configured, pass --model provider:model")
	}
	return sel, nil
}

func (a *app) Close() error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	if a.bridge != nil {
		errs = append(errs, a.bridge.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
