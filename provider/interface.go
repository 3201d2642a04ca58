// Package provider implements model.Adapter for every supported backend
// family.
//
// Each family has one adapter built on that vendor's Go SDK:
//   - OpenAIAdapter (openai-go) for OpenAI and every OpenAI-compatible API
//   - AnthropicAdapter (anthropic-sdk-go)
//   - GeminiAdapter (genai)
//   - GroqAdapter (go-openai)
//   - OllamaAdapter (ollama api, through the ollama package)
//
// Adapters hold no conversation state. The orchestrator passes the full
// turn history and the credential on every call, and gets back a
// model.Stream of normalized deltas. Tool call fragments are reassembled by
// callAssembler so every adapter emits the same start/args/end sequence.
//
// # Usage
//
//	reg := provider.NewRegistry(cfg.Providers, provider.Options{})
//	p, adapter, err := reg.Get("openai")
//	stream := adapter.StreamChat(ctx, cred, "gpt-4o", turns, tools)
//	defer stream.Close()
//	for stream.Next() {
//	    d := stream.Current()
//	}
package provider

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Options are shared by every adapter built from one registry.
type Options struct {
	// HTTPClient overrides the SDK default client. Nil keeps the default.
	HTTPClient *http.Client

	// MaxRetries bounds SDK-level retries of a request that failed before
	// any response body was read. Zero disables them.
	MaxRetries int

	// RequestsPerMinute throttles each provider separately. Zero means
	// unlimited.
	RequestsPerMinute int
}

// limiter builds a per-provider limiter from RequestsPerMinute, or nil when
// requests are not throttled.
func (o Options) limiter() *rate.Limiter {
	if o.RequestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(o.RequestsPerMinute)/60.0), 1)
}
