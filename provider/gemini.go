package provider

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"google.golang.org/genai"

	"deepchat/config"
	"deepchat/mcp"
	"deepchat/model"
)

// GeminiAdapter talks to the Gemini API through google.golang.org/genai.
type GeminiAdapter struct {
	provider model.Provider
	opts     Options
}

// NewGeminiAdapter creates a Gemini adapter.
func NewGeminiAdapter(p model.Provider, opts Options) (*GeminiAdapter, error) {
	return &GeminiAdapter{provider: p, opts: opts}, nil
}

func (a *GeminiAdapter) Family() model.Family {
	return model.FamilyGemini
}

func (a *GeminiAdapter) client(ctx context.Context, cred model.Credential) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     cred.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.opts.HTTPClient,
	}
	if base := a.provider.ResolvedBaseURL(); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, model.Wrap(model.KindNotConfigured, a.provider.ID, fmt.Errorf("failed to create Gemini client: %w", err))
	}
	return client, nil
}

// ListModels returns models that support generateContent. Embedding and
// other non-chat models are skipped.
func (a *GeminiAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	client, err := a.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	var result []model.ModelDescriptor
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, classifyError(a.provider.ID, fmt.Errorf("failed to list models: %w", err))
		}
		if len(m.SupportedActions) > 0 && !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		result = append(result, model.ModelDescriptor{
			ProviderID:        a.provider.ID,
			ID:                id,
			DisplayName:       name,
			SupportsTools:     true,
			SupportsStreaming: true,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// StreamChat streams generateContent. Gemini delivers function calls whole,
// so each one is emitted as a complete start/args/end group.
func (a *GeminiAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	contents := ConvertToGeminiContents(turns)
	cfg := &genai.GenerateContentConfig{}
	if len(tools) > 0 {
		cfg.Tools = mcp.ConvertToolsToGemini(tools)
	}

	return newStream(ctx, a.provider.ID, classifyError, func(ctx context.Context, emit emitFunc) error {
		client, err := a.client(ctx, cred)
		if err != nil {
			return err
		}

		calls := newCallAssembler(emit)
		finished := false

		for resp, err := range client.Models.GenerateContentStream(ctx, modelID, contents, cfg) {
			if err != nil {
				return fmt.Errorf("streaming error: %w", err)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]

			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if part == nil {
						continue
					}
					if part.FunctionCall != nil {
						fc := part.FunctionCall
						ok, err := calls.whole(fc.ID, fc.Name, fc.Args)
						if err != nil {
							return err
						}
						if !ok {
							return nil
						}
						continue
					}
					if part.Text != "" && !part.Thought {
						if !emit(model.TextDelta(part.Text)) {
							return nil
						}
					}
				}
			}

			if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonUnspecified {
				finished = true
			}
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
