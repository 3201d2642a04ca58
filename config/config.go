package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"deepchat/model"
)

// ProviderConfig is one [[providers]] entry in config.toml.
type ProviderConfig struct {
	ID        string `toml:"id"`
	Name      string `toml:"name,omitempty"`
	Family    string `toml:"family"`
	BaseURL   string `toml:"base_url,omitempty"`
	Anonymous bool   `toml:"anonymous,omitempty"`
	Enabled   bool   `toml:"enabled"`
}

// Provider converts the entry to the domain type.
func (p ProviderConfig) Provider() model.Provider {
	return model.Provider{
		ID:        p.ID,
		Name:      p.Name,
		Family:    model.Family(p.Family),
		BaseURL:   p.BaseURL,
		Anonymous: p.Anonymous,
	}
}

// MCPServerConfig is one [[mcp_servers]] entry in config.toml.
type MCPServerConfig struct {
	ID          string            `toml:"id"`
	Name        string            `toml:"name,omitempty"`
	Description string            `toml:"description,omitempty"`
	Transport   string            `toml:"transport"`
	Command     string            `toml:"command,omitempty"`
	Args        []string          `toml:"args,omitempty"`
	Env         map[string]string `toml:"env,omitempty"`
	URL         string            `toml:"url,omitempty"`
	Headers     map[string]string `toml:"headers,omitempty"`
	Enabled     bool              `toml:"enabled"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// ChatConfig holds the [chat] table.
type ChatConfig struct {
	MaxToolIterations int      `toml:"max_tool_iterations"`
	ToolTimeout       Duration `toml:"tool_timeout"`
	StreamIdleTimeout Duration `toml:"stream_idle_timeout"`
	// RequestsPerMinute paces calls to each provider. 0 means unlimited.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// SecurityConfig holds the [security] table.
type SecurityConfig struct {
	CredentialStorage SecurityMethod `toml:"credential_storage"`
	SSHKeyPath        string         `toml:"ssh_key_path,omitempty"`
}

type Config struct {
	DataDirectory   string            `toml:"data_directory"`
	DefaultProvider string            `toml:"default_provider,omitempty"`
	DefaultModel    string            `toml:"default_model,omitempty"`
	Chat            ChatConfig        `toml:"chat"`
	Security        SecurityConfig    `toml:"security"`
	Providers       []ProviderConfig  `toml:"providers"`
	MCPServers      []MCPServerConfig `toml:"mcp_servers,omitempty"`
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Selection returns the default provider and model.
func (c *Config) Selection() model.Selection {
	return model.Selection{ProviderID: c.DefaultProvider, ModelID: c.DefaultModel}
}

// Provider returns the entry with id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// SetProviderBaseURL updates the base URL of an existing provider entry.
func (c *Config) SetProviderBaseURL(id, baseURL string) error {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			c.Providers[i].BaseURL = baseURL
			return nil
		}
	}
	return fmt.Errorf("unknown provider: %s", id)
}

// applyDefaults fills zero fields from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DataDirectory == "" {
		c.DataDirectory = def.DataDirectory
	}
	if c.Chat.MaxToolIterations <= 0 {
		c.Chat.MaxToolIterations = def.Chat.MaxToolIterations
	}
	if c.Chat.ToolTimeout.Duration <= 0 {
		c.Chat.ToolTimeout = def.Chat.ToolTimeout
	}
	if c.Chat.StreamIdleTimeout.Duration <= 0 {
		c.Chat.StreamIdleTimeout = def.Chat.StreamIdleTimeout
	}
	if c.Chat.RequestsPerMinute < 0 {
		c.Chat.RequestsPerMinute = 0
	}
	if c.Security.CredentialStorage == "" {
		c.Security.CredentialStorage = def.Security.CredentialStorage
	}
	if c.Providers == nil {
		c.Providers = def.Providers
	}
}

func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("DEEPCHAT_DEFAULT_PROVIDER"); p != "" {
		c.DefaultProvider = p
	}
	if m := os.Getenv("DEEPCHAT_DEFAULT_MODEL"); m != "" {
		c.DefaultModel = m
	}
	if host := os.Getenv("DEEPCHAT_OLLAMA_HOST"); host != "" {
		for i := range c.Providers {
			if c.Providers[i].Family == string(model.FamilyOllama) {
				c.Providers[i].BaseURL = host
			}
		}
	}
}

// CheckDebug reports whether DEEPCHAT_DEBUG asks for debug logging.
func CheckDebug() bool {
	debug := os.Getenv("DEEPCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens the debug log when force is set or DEEPCHAT_DEBUG is
// on. The log goes to DEEPCHAT_DEBUG_LOG if set, else <dataDir>/debug.log.
func InitDebugLog(dataDir string, force bool) {
	if !force && !CheckDebug() {
		return
	}

	Debug = true
	logPath := os.Getenv("DEEPCHAT_DEBUG_LOG")
	if logPath == "" {
		logPath = filepath.Join(dataDir, "debug.log")
	}

	// 0600: the log can contain prompts and tool output
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (DEEPCHAT_DEBUG=%s) ===", os.Getenv("DEEPCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// SetDebugOutput routes debug logging to w. Passing nil turns it off.
func SetDebugOutput(w io.Writer) {
	if w == nil {
		Debug = false
		DebugLog = nil
		return
	}
	Debug = true
	DebugLog = log.New(w, "", log.Lmicroseconds)
}

// ResolveDataDir picks the data directory: the explicit argument, then
// DEEPCHAT_DATA_DIR, then the platform default.
func ResolveDataDir(dataDir string) string {
	switch {
	case dataDir != "":
		return ExpandPath(dataDir)
	case os.Getenv("DEEPCHAT_DATA_DIR") != "":
		return ExpandPath(os.Getenv("DEEPCHAT_DATA_DIR"))
	default:
		return GetDefaultDataDir()
	}
}

// Load reads <dataDir>/config.toml, creating it from defaults on first run.
func Load(dataDir string) (*Config, error) {
	dataDir = ResolveDataDir(dataDir)

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	path := ConfigFilePath(dataDir)
	cfg := &Config{}

	if FileExists(path) {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		cfg = DefaultConfig()
		cfg.DataDirectory = dataDir
		if err := Save(cfg); err != nil {
			return nil, err
		}
		if DebugLog != nil {
			DebugLog.Printf("[Config] Created default config at %s", path)
		}
	}

	// The directory we loaded from wins over whatever the file says.
	cfg.DataDirectory = dataDir
	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	return cfg, nil
}

const configHeader = `# DeepChat configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

`

// Save writes cfg to <data dir>/config.toml with 0600 permissions.
func Save(cfg *Config) error {
	path := ConfigFilePath(cfg.DataDir())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, configHeader); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
