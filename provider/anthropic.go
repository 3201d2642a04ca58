package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
)

// anthropicMaxTokens is required by the Messages API.
const anthropicMaxTokens = 4096

// curatedClaudeModels is served when the models endpoint is not available to
// the key (some proxies and older keys return 404 there).
var curatedClaudeModels = []anthropic.Model{
	anthropic.ModelClaudeSonnet4_5_20250929,
	anthropic.ModelClaudeOpus4_1_20250805,
	anthropic.ModelClaudeSonnet4_20250514,
	anthropic.ModelClaude3_5Haiku20241022,
	anthropic.ModelClaude_3_Haiku_20240307,
}

// AnthropicAdapter talks to the Anthropic Messages API through the official SDK.
type AnthropicAdapter struct {
	provider model.Provider
	opts     Options
}

// NewAnthropicAdapter creates an Anthropic adapter.
func NewAnthropicAdapter(p model.Provider, opts Options) (*AnthropicAdapter, error) {
	return &AnthropicAdapter{provider: p, opts: opts}, nil
}

func (a *AnthropicAdapter) Family() model.Family {
	return model.FamilyAnthropic
}

func (a *AnthropicAdapter) client(cred model.Credential) anthropic.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(a.provider.ResolvedBaseURL()),
		option.WithAPIKey(cred.APIKey),
		option.WithMaxRetries(a.opts.MaxRetries),
	}
	if a.opts.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(a.opts.HTTPClient))
	}
	return anthropic.NewClient(opts...)
}

// ListModels pages through the models endpoint. A 404 falls back to the
// curated list; any other failure is returned classified.
func (a *AnthropicAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	client := a.client(cred)

	var result []model.ModelDescriptor
	iter := client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{Limit: anthropic.Int(100)})
	for iter.Next() {
		m := iter.Current()
		result = append(result, a.descriptor(m.ID, m.DisplayName))
	}
	if err := iter.Err(); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] %s models endpoint unavailable, using curated list", a.provider.ID)
			}
			return a.curated(), nil
		}
		return nil, classifyError(a.provider.ID, fmt.Errorf("failed to list models: %w", err))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (a *AnthropicAdapter) curated() []model.ModelDescriptor {
	result := make([]model.ModelDescriptor, 0, len(curatedClaudeModels))
	for _, m := range curatedClaudeModels {
		result = append(result, a.descriptor(string(m), string(m)))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (a *AnthropicAdapter) descriptor(id, name string) model.ModelDescriptor {
	if name == "" {
		name = id
	}
	return model.ModelDescriptor{
		ProviderID:        a.provider.ID,
		ID:                id,
		DisplayName:       name,
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

// StreamChat streams a Messages API response.
//
// Tool use arrives as a content block: content_block_start names the tool,
// input_json_delta events carry the arguments and content_block_stop closes
// it. A stream without message_stop was cut off.
func (a *AnthropicAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  ConvertToAnthropicMessages(turns),
		MaxTokens: anthropicMaxTokens,
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertToolsToAnthropic(tools)
	}

	return newStream(ctx, a.provider.ID, classifyError, func(ctx context.Context, emit emitFunc) error {
		client := a.client(cred)
		stream := client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		calls := newCallAssembler(emit)
		stopped := false

		for stream.Next() {
			event := stream.Current()

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					if !calls.start(int(ev.Index), ev.ContentBlock.ID, ev.ContentBlock.Name) {
						return nil
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" && !emit(model.TextDelta(delta.Text)) {
						return nil
					}
				case anthropic.InputJSONDelta:
					ok, err := calls.args(int(ev.Index), delta.PartialJSON)
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}

			case anthropic.ContentBlockStopEvent:
				ok, err := calls.end(int(ev.Index))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}

			case anthropic.MessageStopEvent:
				stopped = true
			}
		}

		if err := stream.Err(); err != nil {
			return fmt.Errorf("streaming error: %w", err)
		}
		if err := calls.finish(); err != nil {
			return err
		}
		if !stopped {
			return model.NewError(model.KindProtocol, "stream ended before message_stop")
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s stream complete (model=%s)", a.provider.ID, modelID)
		}
		return nil
	})
}
