// Package catalog caches the models each provider offers.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"

	"deepchat/config"
	"deepchat/model"
)

// ProviderResolver looks up a provider and its adapter. *provider.Registry
// implements it.
type ProviderResolver interface {
	Get(id string) (model.Provider, model.Adapter, error)
}

// CredentialSource yields the credential a provider needs.
// *config.CredentialStore implements it.
type CredentialSource interface {
	Require(p model.Provider) (model.Credential, error)
}

// Catalog holds the last successful model listing per provider. Refreshes
// are always explicit.
type Catalog struct {
	providers ProviderResolver
	creds     CredentialSource

	mu     sync.Mutex
	models map[string][]model.ModelDescriptor
	// generation is bumped by Invalidate. A refresh only caches its result
	// if the generation it started under is still current.
	generation map[string]uint64
}

func New(providers ProviderResolver, creds CredentialSource) *Catalog {
	return &Catalog{
		providers:  providers,
		creds:      creds,
		models:     make(map[string][]model.ModelDescriptor),
		generation: make(map[string]uint64),
	}
}

// Refresh lists providerID's models and caches them sorted by ID.
//
// Errors come back unchanged and leave the cache as it was. If the provider
// is invalidated while the listing is in flight, the result is returned but
// not cached, since it may have been fetched with a stale credential.
func (c *Catalog) Refresh(ctx context.Context, providerID string) ([]model.ModelDescriptor, error) {
	c.mu.Lock()
	gen := c.generation[providerID]
	c.mu.Unlock()

	p, adapter, err := c.providers.Get(providerID)
	if err != nil {
		return nil, err
	}
	cred, err := c.creds.Require(p)
	if err != nil {
		return nil, err
	}

	listed, err := adapter.ListModels(ctx, cred)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Catalog] Refresh of %s failed: %v", providerID, err)
		}
		return nil, err
	}

	models := make([]model.ModelDescriptor, len(listed))
	copy(models, listed)
	for i := range models {
		if models[i].ProviderID == "" {
			models[i].ProviderID = providerID
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation[providerID] != gen {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Catalog] Dropping stale listing for %s", providerID)
		}
		return copyModels(models), nil
	}
	c.models[providerID] = models

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Catalog] Cached %d models for %s", len(models), providerID)
	}
	return copyModels(models), nil
}

// Cached returns a copy of the last successful listing, or nil.
func (c *Catalog) Cached(providerID string) []model.ModelDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyModels(c.models[providerID])
}

// Invalidate drops the cached listing for providerID and voids any refresh
// still in flight for it.
func (c *Catalog) Invalidate(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.models, providerID)
	c.generation[providerID]++

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Catalog] Invalidated %s", providerID)
	}
}

// Search filters the cached models of providerID by fuzzy-matching term
// against their IDs, best match first. An empty term returns everything.
func (c *Catalog) Search(providerID, term string) []model.ModelDescriptor {
	models := c.Cached(providerID)
	if term == "" {
		return models
	}

	targets := make([]string, len(models))
	for i, m := range models {
		targets[i] = m.ID
	}

	matches := fuzzy.Find(term, targets)
	result := make([]model.ModelDescriptor, len(matches))
	for i, match := range matches {
		result[i] = models[match.Index]
	}
	return result
}

// Lookup finds the cached descriptor for sel.
func (c *Catalog) Lookup(sel model.Selection) (model.ModelDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.models[sel.ProviderID] {
		if m.ID == sel.ModelID {
			return m, true
		}
	}
	return model.ModelDescriptor{}, false
}

func copyModels(in []model.ModelDescriptor) []model.ModelDescriptor {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.ModelDescriptor, len(in))
	copy(out, in)
	return out
}
