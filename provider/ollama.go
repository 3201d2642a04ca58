package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/ollama/ollama/api"

	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
	"deepchat/ollama"
)

// OllamaAdapter talks to a local Ollama daemon. No credential is needed.
type OllamaAdapter struct {
	provider model.Provider
	client   *ollama.Client
}

// NewOllamaAdapter creates an Ollama adapter. It fails when the base URL
// cannot be parsed.
func NewOllamaAdapter(p model.Provider, opts Options) (*OllamaAdapter, error) {
	client, err := ollama.NewClient(p.ResolvedBaseURL(), opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaAdapter{provider: p, client: client}, nil
}

func (a *OllamaAdapter) Family() model.Family {
	return model.FamilyOllama
}

// ListModels lists locally pulled models. Tool support comes from the
// curated family list since Ollama does not report it.
func (a *OllamaAdapter) ListModels(ctx context.Context, _ model.Credential) ([]model.ModelDescriptor, error) {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, classifyError(a.provider.ID, err)
	}

	result := make([]model.ModelDescriptor, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelDescriptor{
			ProviderID:        a.provider.ID,
			ID:                m.Name,
			DisplayName:       m.Name,
			SupportsTools:     ollama.ModelSupportsToolCalling(m.Name),
			SupportsStreaming: true,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// StreamChat streams an NDJSON chat response. Ollama sends tool calls whole
// and marks the last chunk with done; a stream without it was truncated.
func (a *OllamaAdapter) StreamChat(ctx context.Context, _ model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	messages := ConvertToOllamaMessages(turns)
	var ollamaTools []api.Tool
	if len(tools) > 0 {
		ollamaTools = mcp.ConvertToolsToOllama(tools)
	}

	return newStream(ctx, a.provider.ID, classifyError, func(ctx context.Context, emit emitFunc) error {
		calls := newCallAssembler(emit)
		finished := false

		err := a.client.ChatStream(ctx, modelID, messages, ollamaTools, func(content string, toolCalls []api.ToolCall, done bool) error {
			if content != "" && !emit(model.TextDelta(content)) {
				return context.Canceled
			}
			for _, tc := range toolCalls {
				name, args := ConvertFromOllamaToolCall(tc)
				ok, err := calls.whole("", name, args)
				if err != nil {
					return err
				}
				if !ok {
					return context.Canceled
				}
			}
			if done {
				finished = true
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("streaming error: %w", err)
		}
		if !finished {
			return model.NewError(model.KindProtocol, "stream ended before the final chunk")
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s stream complete (model=%s)", a.provider.ID, modelID)
		}
		return nil
	})
}
