package config

import (
	"time"

	"deepchat/model"
)

// DefaultProviders are the providers a fresh install knows about.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{ID: "openai", Name: "OpenAI", Family: string(model.FamilyOpenAICompatible), Enabled: true},
		{ID: "anthropic", Name: "Anthropic", Family: string(model.FamilyAnthropic), Enabled: true},
		{ID: "gemini", Name: "Google Gemini", Family: string(model.FamilyGemini), Enabled: true},
		{ID: "groq", Name: "Groq", Family: string(model.FamilyGroq), Enabled: true},
		{ID: "deepseek", Name: "DeepSeek", Family: string(model.FamilyOpenAICompatible), BaseURL: "https://api.deepseek.com", Enabled: true},
		{ID: "openrouter", Name: "OpenRouter", Family: string(model.FamilyOpenAICompatible), BaseURL: "https://openrouter.ai/api/v1", Anonymous: true, Enabled: true},
		{ID: "moonshot", Name: "Moonshot", Family: string(model.FamilyOpenAICompatible), BaseURL: "https://api.moonshot.cn/v1", Enabled: true},
		{ID: "ollama", Name: "Ollama", Family: string(model.FamilyOllama), BaseURL: "http://localhost:11434", Enabled: true},
	}
}

func DefaultConfig() *Config {
	return &Config{
		DataDirectory:   "~/.local/share/deepchat",
		DefaultProvider: "ollama",
		DefaultModel:    "llama3.1:latest",
		Chat: ChatConfig{
			MaxToolIterations: 10,
			ToolTimeout:       Duration{30 * time.Second},
			StreamIdleTimeout: Duration{60 * time.Second},
		},
		Security: SecurityConfig{
			CredentialStorage: SecurityPlainText,
		},
		Providers: DefaultProviders(),
	}
}
