package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir() != dir {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir(), dir)
	}
	if !FileExists(ConfigFilePath(dir)) {
		t.Fatal("config.toml was not created")
	}
	info, err := os.Stat(ConfigFilePath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	if cfg.Chat.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d", cfg.Chat.MaxToolIterations)
	}
	if cfg.Chat.ToolTimeout.Duration != 30*time.Second {
		t.Errorf("ToolTimeout = %s", cfg.Chat.ToolTimeout)
	}
	if len(cfg.Providers) != len(DefaultProviders()) {
		t.Errorf("providers = %d", len(cfg.Providers))
	}
	if sel := cfg.Selection(); sel.String() != "ollama:llama3.1:latest" {
		t.Errorf("selection = %s", sel)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg.DefaultProvider = "anthropic"
	cfg.DefaultModel = "claude-sonnet-4-5"
	cfg.Chat.ToolTimeout = Duration{5 * time.Second}
	cfg.MCPServers = []MCPServerConfig{{
		ID:        "files",
		Transport: "stdio",
		Command:   "npx",
		Args:      []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		Enabled:   true,
	}}
	if err := cfg.SetProviderBaseURL("ollama", "http://gpu-box:11434"); err != nil {
		t.Fatal(err)
	}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(ConfigFilePath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "# DeepChat configuration") {
		t.Error("config header missing")
	}
	if !strings.Contains(string(raw), `tool_timeout = "5s"`) {
		t.Errorf("duration not written as a string:\n%s", raw)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DefaultProvider != "anthropic" || reloaded.DefaultModel != "claude-sonnet-4-5" {
		t.Errorf("selection lost: %s", reloaded.Selection())
	}
	if reloaded.Chat.ToolTimeout.Duration != 5*time.Second {
		t.Errorf("ToolTimeout = %s", reloaded.Chat.ToolTimeout)
	}
	if len(reloaded.MCPServers) != 1 || reloaded.MCPServers[0].Args[2] != "/tmp" {
		t.Errorf("mcp servers: %+v", reloaded.MCPServers)
	}
	p, ok := reloaded.Provider("ollama")
	if !ok || p.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ollama provider: %+v", p)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	content := "[chat]\ntool_timeout = \"soon\"\n"
	if err := os.WriteFile(ConfigFilePath(dir), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	content := "default_provider = \"groq\"\n[chat]\nmax_tool_iterations = 0\nrequests_per_minute = -5\n"
	if err := os.WriteFile(ConfigFilePath(dir), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chat.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d", cfg.Chat.MaxToolIterations)
	}
	if cfg.Chat.RequestsPerMinute != 0 {
		t.Errorf("RequestsPerMinute = %d", cfg.Chat.RequestsPerMinute)
	}
	if cfg.Security.CredentialStorage != SecurityPlainText {
		t.Errorf("credential storage = %s", cfg.Security.CredentialStorage)
	}
	if cfg.DefaultProvider != "groq" {
		t.Errorf("default provider = %s", cfg.DefaultProvider)
	}
	if len(cfg.Providers) == 0 {
		t.Error("providers should default")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEEPCHAT_DEFAULT_PROVIDER", "gemini")
	t.Setenv("DEEPCHAT_DEFAULT_MODEL", "gemini-2.5-flash")
	t.Setenv("DEEPCHAT_OLLAMA_HOST", "http://10.0.0.5:11434")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Selection().String() != "gemini:gemini-2.5-flash" {
		t.Errorf("selection = %s", cfg.Selection())
	}
	p, _ := cfg.Provider("ollama")
	if p.BaseURL != "http://10.0.0.5:11434" {
		t.Errorf("ollama base URL = %s", p.BaseURL)
	}
	other, _ := cfg.Provider("openai")
	if other.BaseURL != "" {
		t.Errorf("override leaked to openai: %s", other.BaseURL)
	}
}

func TestResolveDataDir(t *testing.T) {
	t.Setenv("DEEPCHAT_DATA_DIR", "/srv/deepchat")

	if got := ResolveDataDir("/explicit"); got != "/explicit" {
		t.Errorf("explicit: %s", got)
	}
	if got := ResolveDataDir(""); got != "/srv/deepchat" {
		t.Errorf("env: %s", got)
	}

	t.Setenv("DEEPCHAT_DATA_DIR", "")
	if got := ResolveDataDir(""); got != GetDefaultDataDir() {
		t.Errorf("default: %s", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := GetHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/notes", filepath.Join(home, "notes")},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetProviderBaseURLUnknown(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.SetProviderBaseURL("nope", "http://x"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSetDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	SetDebugOutput(&buf)
	defer SetDebugOutput(nil)

	if !Debug || DebugLog == nil {
		t.Fatal("debug logging should be on")
	}
	DebugLog.Printf("[Test] hello")
	if !strings.Contains(buf.String(), "[Test] hello") {
		t.Errorf("log output: %q", buf.String())
	}

	SetDebugOutput(nil)
	if Debug || DebugLog != nil {
		t.Error("debug logging should be off")
	}
}
