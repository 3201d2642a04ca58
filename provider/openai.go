package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
)

// OpenAIAdapter speaks the OpenAI chat completions protocol. It serves every
// OpenAI-compatible provider (OpenAI, DeepSeek, OpenRouter, Moonshot or a
// local server) since they only differ in base URL and key.
type OpenAIAdapter struct {
	provider model.Provider
	opts     Options
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible provider.
func NewOpenAIAdapter(p model.Provider, opts Options) (*OpenAIAdapter, error) {
	if p.ResolvedBaseURL() == "" {
		return nil, fmt.Errorf("provider %s: base URL is required", p.ID)
	}
	return &OpenAIAdapter{provider: p, opts: opts}, nil
}

func (a *OpenAIAdapter) Family() model.Family {
	return model.FamilyOpenAICompatible
}

// client builds an SDK client scoped to cred. Clients are cheap and holding
// one per call keeps credential changes visible immediately.
func (a *OpenAIAdapter) client(cred model.Credential) openai.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(a.provider.ResolvedBaseURL()),
		option.WithMaxRetries(a.opts.MaxRetries),
	}
	if !cred.Empty() {
		opts = append(opts, option.WithAPIKey(cred.APIKey))
	}
	if a.opts.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(a.opts.HTTPClient))
	}
	return openai.NewClient(opts...)
}

// ListModels returns the models reported by the /models endpoint.
func (a *OpenAIAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	client := a.client(cred)

	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, classifyError(a.provider.ID, fmt.Errorf("failed to list models: %w", err))
	}

	result := make([]model.ModelDescriptor, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, model.ModelDescriptor{
			ProviderID:        a.provider.ID,
			ID:                m.ID,
			DisplayName:       m.ID,
			SupportsTools:     true,
			SupportsStreaming: true,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// StreamChat streams a chat completion.
//
// Tool call chunks arrive keyed by index: the first chunk for an index
// carries the call ID and function name, later ones carry argument
// fragments. Calls are closed when a choice reports its finish reason.
func (a *OpenAIAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(turns),
		Model:    openai.ChatModel(modelID),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertToolsToOpenAI(tools)
	}

	return newStream(ctx, a.provider.ID, classifyError, func(ctx context.Context, emit emitFunc) error {
		client := a.client(cred)
		stream := client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		calls := newCallAssembler(emit)
		finished := false

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				if !emit(model.TextDelta(choice.Delta.Content)) {
					return nil
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				index := int(tc.Index)
				if !calls.started(index) {
					if !calls.start(index, tc.ID, tc.Function.Name) {
						return nil
					}
				}
				ok, err := calls.args(index, tc.Function.Arguments)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			if choice.FinishReason != "" {
				finished = true
				ok, err := calls.endAll()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
		}

		if err := stream.Err(); err != nil {
			return fmt.Errorf("streaming error: %w", err)
		}
		if err := calls.finish(); err != nil {
			return err
		}
		if !finished {
			return model.NewError(model.KindProtocol, "stream ended without a finish reason")
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s stream complete (model=%s)", a.provider.ID, modelID)
		}
		return nil
	})
}
