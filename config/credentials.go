package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"deepchat/model"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore holds one API key per provider.
//
// Change hooks run while the write lock is held, so a hook that clears a
// cache finishes before any reader can see the new credential. Hooks must
// not call back into the store.
type CredentialStore struct {
	mu          sync.RWMutex
	method      SecurityMethod
	credentials map[string]string // providerID → API key
	sshKeyPath  string
	passphrase  string
	sealer      *Sealer
	hooks       []func(providerID string)
}

// NewCredentialStore creates a new credential store
func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	if method == "" {
		method = SecurityPlainText
	}
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	c.sealer = nil
}

// Method returns the current security method
func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

// OnChange registers fn to run whenever a provider's credential changes.
func (c *CredentialStore) OnChange(fn func(providerID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// notifyLocked runs the hooks. The caller holds the write lock.
func (c *CredentialStore) notifyLocked(providerID string) {
	for _, fn := range c.hooks {
		fn(providerID)
	}
}

// Get returns the credential for providerID.
func (c *CredentialStore) Get(providerID string) (model.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.credentials[providerID]
	if !ok {
		return model.Credential{}, false
	}
	return model.Credential{ProviderID: providerID, APIKey: key}, true
}

// Set stores cred for providerID, replacing any previous key. Every Set
// runs the change hooks, even when the key is unchanged. The key must not be
// empty; providers that need no key need no stored credential, since Require
// hands them an empty one.
func (c *CredentialStore) Set(providerID string, cred model.Credential) error {
	key := strings.TrimSpace(cred.APIKey)
	if providerID == "" {
		return fmt.Errorf("provider ID is required")
	}
	if key == "" {
		return fmt.Errorf("API key for %s is empty", providerID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.credentials[providerID] = key
	c.notifyLocked(providerID)

	if DebugLog != nil {
		DebugLog.Printf("[CredentialStore] Set credential for %s", providerID)
	}
	return nil
}

// Remove deletes the credential for providerID. Removing an absent
// credential is a no-op.
func (c *CredentialStore) Remove(providerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.credentials[providerID]; !ok {
		return nil
	}
	delete(c.credentials, providerID)
	c.notifyLocked(providerID)

	if DebugLog != nil {
		DebugLog.Printf("[CredentialStore] Removed credential for %s", providerID)
	}
	return nil
}

// Providers returns the IDs that have a credential, sorted.
func (c *CredentialStore) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.credentials))
	for id := range c.credentials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Require returns the credential p needs. Providers that need no key get
// an empty credential; otherwise a missing key is NotConfigured.
func (c *CredentialStore) Require(p model.Provider) (model.Credential, error) {
	if cred, ok := c.Get(p.ID); ok {
		return cred, nil
	}
	if !p.RequiresCredential() {
		return model.Credential{ProviderID: p.ID}, nil
	}
	return model.Credential{}, &model.Error{
		Kind:     model.KindNotConfigured,
		Provider: p.ID,
		Message:  fmt.Sprintf("no API key configured for %s", p.DisplayName()),
	}
}

// ReplaceAll makes the store hold exactly creds. Hooks run once for every
// provider whose key was added, changed or removed.
func (c *CredentialStore) ReplaceAll(creds map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []string
	for id, old := range c.credentials {
		if next, ok := creds[id]; !ok || strings.TrimSpace(next) != old {
			changed = append(changed, id)
		}
	}
	for id, key := range creds {
		if _, ok := c.credentials[id]; !ok && strings.TrimSpace(key) != "" {
			changed = append(changed, id)
		}
	}

	next := make(map[string]string, len(creds))
	for id, key := range creds {
		if key = strings.TrimSpace(key); key != "" {
			next[id] = key
		}
	}
	c.credentials = next

	sort.Strings(changed)
	for _, id := range changed {
		c.notifyLocked(id)
	}

	if DebugLog != nil && len(changed) > 0 {
		DebugLog.Printf("[CredentialStore] Reloaded credentials, %d providers changed", len(changed))
	}
}

// CredentialsPath returns the file the store persists to for its method.
func (c *CredentialStore) CredentialsPath(dataDir string) string {
	if c.method == SecuritySSHKey {
		return encryptedCredentialsPath(dataDir)
	}
	return credentialsPath(dataDir)
}

// Load loads credentials from disk based on the configured security method
func (c *CredentialStore) Load(dataDir string) error {
	creds, err := c.readFile(dataDir)
	if err != nil {
		return err
	}
	c.ReplaceAll(creds)
	return nil
}

// readFile decodes the credentials file without touching the store.
func (c *CredentialStore) readFile(dataDir string) (map[string]string, error) {
	switch c.method {
	case SecurityPlainText:
		return loadPlainText(dataDir)
	case SecuritySSHKey:
		return c.loadSSHEncrypted(dataDir)
	default:
		return nil, fmt.Errorf("unknown security method: %s", c.method)
	}
}

// Save saves credentials to disk based on the configured security method
func (c *CredentialStore) Save(dataDir string) error {
	c.mu.RLock()
	snapshot := make(map[string]string, len(c.credentials))
	for id, key := range c.credentials {
		snapshot[id] = key
	}
	c.mu.RUnlock()

	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, snapshot)
	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir, snapshot)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

// credentialsPath returns the path to the plain text credentials file
func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

// encryptedCredentialsPath returns the path to the encrypted credentials file
func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

// ===== Plain Text Storage =====

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)

	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}
	return cf.Credentials, nil
}

// savePlainText saves credentials to plain text TOML file with 0600 permissions
func savePlainText(dataDir string, creds map[string]string) error {
	path := credentialsPath(dataDir)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return nil
}

// ===== SSH Key Encrypted Storage =====

func (c *CredentialStore) getSealer() (*Sealer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealer != nil {
		return c.sealer, nil
	}

	keyPath, err := ResolveSSHKeyPath(c.sshKeyPath)
	if err != nil {
		return nil, err
	}
	sealer, err := NewSSHSealer(keyPath, c.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.sealer = sealer
	return sealer, nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)

	if !FileExists(path) {
		return make(map[string]string), nil
	}

	sealer, err := c.getSealer()
	if err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := sealer.Open(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}
	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string, creds map[string]string) error {
	sealer, err := c.getSealer()
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := sealer.Seal(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}
	return nil
}
