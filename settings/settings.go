// Package settings applies provider settings changes: API keys and base
// URLs. It persists them and keeps the model catalog in step.
package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"deepchat/config"
	"deepchat/model"
)

// Credentials is the part of the credential store the service writes to.
type Credentials interface {
	Get(providerID string) (model.Credential, bool)
	Set(providerID string, cred model.Credential) error
	Remove(providerID string) error
	Save(dataDir string) error
}

// Endpoints is the provider registry.
type Endpoints interface {
	Provider(id string) (model.Provider, bool)
	Providers() []model.Provider
	SetBaseURL(id, baseURL string) error
}

// Models is the model catalog.
type Models interface {
	Refresh(ctx context.Context, providerID string) ([]model.ModelDescriptor, error)
	Cached(providerID string) []model.ModelDescriptor
}

// Update is one settings change for a provider. Nil fields are left alone.
// An empty APIKey removes the credential, as does Remove.
type Update struct {
	ProviderID string
	APIKey     *string
	BaseURL    *string
	Remove     bool
}

// Result reports what Apply did beyond the change itself.
type Result struct {
	// Refreshed is set when a new key triggered a catalog refresh.
	Refreshed bool
	Models    int
	// RefreshErr is the refresh failure, if any. The new key stays stored.
	RefreshErr error
}

// ProviderStatus is one row of Status.
type ProviderStatus struct {
	Provider     model.Provider
	Configured   bool
	CachedModels int
}

// Service applies Updates. Applies are serialized.
type Service struct {
	creds     Credentials
	providers Endpoints
	models    Models
	cfg       *config.Config

	mu sync.Mutex
}

// NewService creates a service. cfg is the loaded configuration; it is
// written back to its data directory on every base URL change.
func NewService(creds Credentials, providers Endpoints, models Models, cfg *config.Config) *Service {
	return &Service{creds: creds, providers: providers, models: models, cfg: cfg}
}

// Apply makes u take effect and persists it.
func (s *Service) Apply(ctx context.Context, u Update) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result

	if _, ok := s.providers.Provider(u.ProviderID); !ok {
		err := model.NewError(model.KindNotConfigured, "unknown provider %q", u.ProviderID)
		err.Provider = u.ProviderID
		return res, err
	}

	if u.BaseURL != nil {
		baseURL := strings.TrimSpace(*u.BaseURL)
		if err := validateBaseURL(baseURL); err != nil {
			return res, err
		}
		if err := s.providers.SetBaseURL(u.ProviderID, baseURL); err != nil {
			return res, err
		}
		if err := s.cfg.SetProviderBaseURL(u.ProviderID, baseURL); err != nil {
			return res, err
		}
		if err := config.Save(s.cfg); err != nil {
			return res, fmt.Errorf("failed to save config: %w", err)
		}
	}

	var key string
	if u.APIKey != nil {
		key = strings.TrimSpace(*u.APIKey)
	}
	remove := u.Remove || (u.APIKey != nil && key == "")

	switch {
	case remove:
		if err := s.creds.Remove(u.ProviderID); err != nil {
			return res, err
		}
	case key != "":
		if err := s.creds.Set(u.ProviderID, model.Credential{ProviderID: u.ProviderID, APIKey: key}); err != nil {
			return res, err
		}
	}

	if remove || key != "" {
		if err := s.creds.Save(s.cfg.DataDir()); err != nil {
			return res, fmt.Errorf("failed to save credentials: %w", err)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Settings] Applied update for %s (key set: %t, removed: %t, base URL: %t)",
			u.ProviderID, key != "" && !remove, remove, u.BaseURL != nil)
	}

	if key != "" && !remove {
		res.Refreshed = true
		models, err := s.models.Refresh(ctx, u.ProviderID)
		if err != nil {
			res.RefreshErr = err
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Settings] Refresh after key change for %s failed: %v", u.ProviderID, err)
			}
		}
		res.Models = len(models)
	}

	return res, nil
}

// Status lists every provider with whether it can be used and how many
// models are cached for it.
func (s *Service) Status() []ProviderStatus {
	providers := s.providers.Providers()
	out := make([]ProviderStatus, 0, len(providers))
	for _, p := range providers {
		_, hasKey := s.creds.Get(p.ID)
		out = append(out, ProviderStatus{
			Provider:     p,
			Configured:   hasKey || !p.RequiresCredential(),
			CachedModels: len(s.models.Cached(p.ID)),
		})
	}
	return out
}

// validateBaseURL accepts "" (family default) or an absolute http(s) URL.
func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: expected http(s)://host", raw)
	}
	return nil
}
