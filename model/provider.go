package model

import (
	"context"
	"fmt"
	"strings"
)

// Family identifies a provider backend family. The set is closed: each family
// has exactly one adapter implementation in the provider package.
type Family string

const (
	FamilyOpenAICompatible Family = "openai-compatible"
	FamilyAnthropic        Family = "anthropic"
	FamilyGemini           Family = "gemini"
	FamilyGroq             Family = "groq"
	FamilyOllama           Family = "ollama"
)

// Families lists every supported family in display order.
var Families = []Family{
	FamilyOpenAICompatible,
	FamilyAnthropic,
	FamilyGemini,
	FamilyGroq,
	FamilyOllama,
}

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// DefaultBaseURL returns the endpoint used when a provider has no base URL
// configured. Gemini returns "" and lets the SDK pick its own endpoint.
func (f Family) DefaultBaseURL() string {
	switch f {
	case FamilyOpenAICompatible:
		return "https://api.openai.com/v1"
	case FamilyAnthropic:
		return "https://api.anthropic.com"
	case FamilyGroq:
		return "https://api.groq.com/openai/v1"
	case FamilyOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

// Provider is a configured backend: an identifier bound to a family and an
// optional base URL. The credential is looked up by ID.
type Provider struct {
	ID        string
	Name      string
	Family    Family
	BaseURL   string
	Anonymous bool
}

// ResolvedBaseURL returns BaseURL, falling back to the family default.
func (p Provider) ResolvedBaseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return p.Family.DefaultBaseURL()
}

// RequiresCredential reports whether requests to p need an API key.
// Local Ollama and providers marked Anonymous can be called without one.
func (p Provider) RequiresCredential() bool {
	return p.Family != FamilyOllama && !p.Anonymous
}

// DisplayName returns Name, or ID when no name is configured.
func (p Provider) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Credential is the secret material for one provider.
// Its formatting methods redact the key so it never reaches a log line.
type Credential struct {
	ProviderID string
	APIKey     string
}

// Empty reports whether the credential carries no key.
func (c Credential) Empty() bool {
	return c.APIKey == ""
}

func (c Credential) String() string {
	if c.APIKey == "" {
		return fmt.Sprintf("Credential{%s: none}", c.ProviderID)
	}
	return fmt.Sprintf("Credential{%s: [REDACTED]}", c.ProviderID)
}

func (c Credential) GoString() string {
	return c.String()
}

// Format keeps %v, %+v and %#v from printing the key.
func (c Credential) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, c.String())
}

// ModelDescriptor describes one model offered by a provider.
type ModelDescriptor struct {
	ProviderID        string
	ID                string
	DisplayName       string
	SupportsTools     bool
	SupportsStreaming bool
}

// Key returns the "provider:model" form used for selection.
func (m ModelDescriptor) Key() string {
	return Selection{ProviderID: m.ProviderID, ModelID: m.ID}.String()
}

// Selection is an active provider plus model pair.
type Selection struct {
	ProviderID string
	ModelID    string
}

func (s Selection) String() string {
	if s.ProviderID == "" && s.ModelID == "" {
		return ""
	}
	return s.ProviderID + ":" + s.ModelID
}

// IsZero reports whether nothing is selected.
func (s Selection) IsZero() bool {
	return s.ProviderID == "" || s.ModelID == ""
}

// ParseSelection parses "provider:model". Only the first colon separates the
// two parts, since Ollama model IDs carry their own tag ("llama3.1:latest").
func ParseSelection(s string) (Selection, error) {
	providerID, modelID, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || providerID == "" || modelID == "" {
		return Selection{}, fmt.Errorf("invalid model selection %q: expected provider:model", s)
	}
	return Selection{ProviderID: providerID, ModelID: modelID}, nil
}

// Adapter is the capability contract every provider family implements.
//
// Adapters are stateless with respect to conversations: the full turn history
// and the credential are passed on every call.
type Adapter interface {
	// Family returns the backend family this adapter speaks to.
	Family() Family

	// ListModels returns the models visible to cred.
	// Failures carry AuthError or ProviderUnreachable.
	ListModels(ctx context.Context, cred Credential) ([]ModelDescriptor, error)

	// StreamChat sends the turn history (and tool schemas when tools is
	// non-empty) and returns the normalized response stream. Errors are
	// reported as a terminal DeltaError inside the stream.
	StreamChat(ctx context.Context, cred Credential, modelID string, turns []Turn, tools []ToolDescriptor) Stream
}

// Stream is a lazy, finite, non-restartable sequence of deltas.
//
//	for s.Next() {
//	    d := s.Current()
//	}
//
// A stream that runs to completion ends with exactly one DeltaDone or
// DeltaError. Close may be called from another goroutine while Next blocks;
// it releases the underlying connection before returning and makes Next
// return false.
type Stream interface {
	Next() bool
	Current() Delta
	Close() error
}
