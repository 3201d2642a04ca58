package provider

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"deepchat/config"
	"deepchat/model"
)

type registryEntry struct {
	provider model.Provider
	adapter  model.Adapter
	limiter  *rate.Limiter
}

// Registry owns the configured providers and the adapter built for each.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	opts    Options
	entries map[string]*registryEntry
	order   []string
	hooks   []func(providerID string)
}

// NewRegistry builds adapters for every enabled provider in providers.
//
// A provider whose adapter cannot be built is logged and skipped so one bad
// entry does not keep the rest from loading.
func NewRegistry(providers []config.ProviderConfig, opts Options) *Registry {
	r := &Registry{
		opts:    opts,
		entries: make(map[string]*registryEntry),
	}

	for _, pc := range providers {
		if !pc.Enabled {
			continue
		}
		if err := r.Register(pc.Provider()); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", pc.ID, err)
			}
			continue
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Initialized provider: %s (family: %s)", pc.ID, pc.Family)
		}
	}

	return r
}

// Register adds p, replacing any provider with the same ID.
func (r *Registry) Register(p model.Provider) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("provider ID is required")
	}
	if !p.Family.Valid() {
		return fmt.Errorf("unknown provider family %q for provider %s", p.Family, p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var limiter *rate.Limiter
	if old, ok := r.entries[p.ID]; ok {
		limiter = old.limiter
	} else {
		limiter = r.opts.limiter()
		r.order = append(r.order, p.ID)
	}

	adapter, err := New(p, r.opts)
	if err != nil {
		return err
	}
	r.entries[p.ID] = &registryEntry{
		provider: p,
		adapter:  Limited(p.ID, adapter, limiter),
		limiter:  limiter,
	}
	return nil
}

// Get returns the provider and its adapter. Unknown IDs fail NotConfigured.
func (r *Registry) Get(id string) (model.Provider, model.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		err := model.NewError(model.KindNotConfigured, "unknown provider %q", id)
		err.Provider = id
		return model.Provider{}, nil, err
	}
	return e.provider, e.adapter, nil
}

// Provider returns the provider registered under id.
func (r *Registry) Provider(id string) (model.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return model.Provider{}, false
	}
	return e.provider, true
}

// Providers returns every registered provider in registration order.
func (r *Registry) Providers() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.Provider, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			result = append(result, e.provider)
		}
	}
	return result
}

// SetBaseURL points a provider at a new endpoint. The adapter is rebuilt and
// change hooks run before the lock is released, so nobody can reach the new
// endpoint while the catalog still holds the old model list.
func (r *Registry) SetBaseURL(id, baseURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return model.NewError(model.KindNotConfigured, "unknown provider %q", id)
	}

	p := e.provider
	p.BaseURL = strings.TrimSpace(baseURL)
	adapter, err := New(p, r.opts)
	if err != nil {
		return fmt.Errorf("failed to rebuild adapter for %s: %w", id, err)
	}
	r.entries[id] = &registryEntry{
		provider: p,
		adapter:  Limited(id, adapter, e.limiter),
		limiter:  e.limiter,
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s base URL set to %q", id, p.ResolvedBaseURL())
	}
	for _, hook := range r.hooks {
		hook(id)
	}
	return nil
}

// OnChange registers fn to run whenever a provider's endpoint changes.
func (r *Registry) OnChange(fn func(providerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}
