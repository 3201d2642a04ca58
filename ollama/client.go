package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultHost is the address of a local Ollama daemon.
const DefaultHost = "http://localhost:11434"

type Client struct {
	client *api.Client
}

// ChunkFunc receives each streamed chat chunk. done is set on the final one.
type ChunkFunc func(content string, toolCalls []api.ToolCall, done bool) error

// NewClient creates a client for the Ollama daemon at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host are required", baseURL)
	}

	return &Client{client: api.NewClient(parsedURL, httpClient)}, nil
}

// ChatStream sends a streaming chat request with optional tool definitions.
func (c *Client) ChatStream(ctx context.Context, modelName string, messages []api.Message, tools []api.Tool, fn ChunkFunc) error {
	stream := true
	req := &api.ChatRequest{
		Model:    modelName,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
	}

	return c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if fn == nil {
			return nil
		}
		return fn(resp.Message.Content, resp.Message.ToolCalls, resp.Done)
	})
}

type ModelInfo struct {
	Name string
	Size int64
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{Name: m.Name, Size: m.Size}
	}
	return models, nil
}

// toolCallingModels is a curated list of model families and whether their
// Ollama templates handle tool calls.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,
	"gpt-oss":   true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes must list specific prefixes before generic ones
// ("llama3.2" before "llama3").
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3", "gpt-oss",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// ModelSupportsToolCalling reports whether modelName is known to support
// tool calling. Unknown models are assumed not to.
func ModelSupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)
	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			if supported, ok := toolCallingModels[prefix]; ok {
				return supported
			}
		}
	}
	return false
}
