package provider

import (
	"fmt"

	"deepchat/model"
)

// New creates the adapter for p's family.
//
// Returns an error if the family is unknown or the family constructor
// rejects the provider (for example an unparsable Ollama URL).
//
// Example:
//
//	a, err := provider.New(model.Provider{
//	    ID:      "deepseek",
//	    Family:  model.FamilyOpenAICompatible,
//	    BaseURL: "https://api.deepseek.com",
//	}, provider.Options{})
func New(p model.Provider, opts Options) (model.Adapter, error) {
	switch p.Family {
	case model.FamilyOpenAICompatible:
		return NewOpenAIAdapter(p, opts)
	case model.FamilyAnthropic:
		return NewAnthropicAdapter(p, opts)
	case model.FamilyGemini:
		return NewGeminiAdapter(p, opts)
	case model.FamilyGroq:
		return NewGroqAdapter(p, opts)
	case model.FamilyOllama:
		return NewOllamaAdapter(p, opts)
	default:
		return nil, fmt.Errorf("unknown provider family %q for provider %s", p.Family, p.ID)
	}
}
