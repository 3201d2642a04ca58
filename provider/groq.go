package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
)

// GroqAdapter talks to Groq's OpenAI-shaped API through go-openai.
type GroqAdapter struct {
	provider model.Provider
	opts     Options
}

// NewGroqAdapter creates a Groq adapter.
func NewGroqAdapter(p model.Provider, opts Options) (*GroqAdapter, error) {
	return &GroqAdapter{provider: p, opts: opts}, nil
}

func (a *GroqAdapter) Family() model.Family {
	return model.FamilyGroq
}

func (a *GroqAdapter) client(cred model.Credential) *goopenai.Client {
	cfg := goopenai.DefaultConfig(cred.APIKey)
	cfg.BaseURL = a.provider.ResolvedBaseURL()
	if a.opts.HTTPClient != nil {
		cfg.HTTPClient = a.opts.HTTPClient
	}
	return goopenai.NewClientWithConfig(cfg)
}

// ListModels lists Groq models. Whisper and guard models cannot chat and are
// reported without tool support.
func (a *GroqAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	list, err := a.client(cred).ListModels(ctx)
	if err != nil {
		return nil, classifyError(a.provider.ID, fmt.Errorf("failed to list models: %w", err))
	}

	result := make([]model.ModelDescriptor, 0, len(list.Models))
	for _, m := range list.Models {
		result = append(result, model.ModelDescriptor{
			ProviderID:        a.provider.ID,
			ID:                m.ID,
			DisplayName:       m.ID,
			SupportsTools:     groqSupportsTools(m.ID),
			SupportsStreaming: true,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func groqSupportsTools(id string) bool {
	for _, prefix := range []string{"whisper", "distil-whisper", "playai-tts"} {
		if strings.HasPrefix(id, prefix) {
			return false
		}
	}
	return true
}

// StreamChat streams a chat completion. go-openai reports the end of the
// stream as io.EOF from Recv.
func (a *GroqAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	req := goopenai.ChatCompletionRequest{
		Model:    modelID,
		Messages: ConvertToGoOpenAIMessages(turns),
		Stream:   true,
	}
	if len(tools) > 0 {
		req.Tools = mcp.ConvertToolsToGoOpenAI(tools)
	}

	return newStream(ctx, a.provider.ID, classifyError, func(ctx context.Context, emit emitFunc) error {
		stream, err := a.client(cred).CreateChatCompletionStream(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to start stream: %w", err)
		}
		defer stream.Close()

		calls := newCallAssembler(emit)
		finished := false

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("streaming error: %w", err)
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]

			if choice.Delta.Content != "" {
				if !emit(model.TextDelta(choice.Delta.Content)) {
					return nil
				}
			}

			for pos, tc := range choice.Delta.ToolCalls {
				index := pos
				if tc.Index != nil {
					index = *tc.Index
				}
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
