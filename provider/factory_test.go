package provider

import (
	"testing"

	"deepchat/model"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		provider    model.Provider
		wantFamily  model.Family
		expectError bool
	}{
		{
			name:       "ollama with defaults",
			provider:   model.Provider{ID: "ollama", Family: model.FamilyOllama},
			wantFamily: model.FamilyOllama,
		},
		{
			name:       "openai compatible",
			provider:   model.Provider{ID: "deepseek", Family: model.FamilyOpenAICompatible, BaseURL: "https://api.deepseek.com"},
			wantFamily: model.FamilyOpenAICompatible,
		},
		{
			name:       "anthropic",
			provider:   model.Provider{ID: "anthropic", Family: model.FamilyAnthropic},
			wantFamily: model.FamilyAnthropic,
		},
		{
			name:       "gemini",
			provider:   model.Provider{ID: "gemini", Family: model.FamilyGemini},
			wantFamily: model.FamilyGemini,
		},
		{
			name:       "groq",
			provider:   model.Provider{ID: "groq", Family: model.FamilyGroq},
			wantFamily: model.FamilyGroq,
		},
		{
			name:        "ollama with invalid url",
			provider:    model.Provider{ID: "ollama", Family: model.FamilyOllama, BaseURL: "::not a url"},
			expectError: true,
		},
		{
			name:        "unknown family",
			provider:    model.Provider{ID: "mystery", Family: model.Family("unknown")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.provider, Options{})

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Family() != tt.wantFamily {
				t.Errorf("family: got %s, want %s", a.Family(), tt.wantFamily)
			}
		})
	}
}

func TestFamilyDefaults(t *testing.T) {
	for _, f := range model.Families {
		p := model.Provider{ID: string(f), Family: f}
		if f != model.FamilyGemini && p.ResolvedBaseURL() == "" {
			t.Errorf("%s has no default base URL", f)
		}
		if _, err := New(p, Options{}); err != nil {
			t.Errorf("%s: default provider should build: %v", f, err)
		}
	}
}
