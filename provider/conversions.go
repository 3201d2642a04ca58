package provider

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"deepchat/model"
)

// The converters below translate the provider-agnostic turn history into
// each SDK's message type. Every adapter sends the full history on every
// call, so these run once per stream_chat.

// ConvertToOllamaMessages converts turns to Ollama api.Message.
//
// Tool turns become role "tool" messages carrying the tool name, which is
// how Ollama pairs results with calls.
//
// Example:
//
//	turns := []model.Turn{
//	    {Role: model.RoleUser, Content: "Hello"},
//	    {Role: model.RoleAssistant, Content: "Hi there!"},
//	}
//	msgs := ConvertToOllamaMessages(turns)
//	// msgs[0].Role == "user"
func ConvertToOllamaMessages(turns []model.Turn) []api.Message {
	result := make([]api.Message, 0, len(turns))
	for _, t := range turns {
		msg := api.Message{
			Role:    string(t.Role),
			Content: t.Content,
		}
		switch t.Role {
		case model.RoleAssistant:
			msg.ToolCalls = ConvertToOllamaToolCalls(t.ToolCalls)
		case model.RoleTool:
			if t.ToolResult != nil {
				msg.ToolName = t.ToolResult.ToolName
			}
		}
		result = append(result, msg)
	}
	return result
}

// ConvertToOllamaToolCalls converts model.ToolCall to Ollama api.ToolCall.
// Returns nil for empty input so the field is omitted on the wire.
func ConvertToOllamaToolCalls(calls []model.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: callArguments(call),
			},
		}
	}
	return result
}

// ConvertFromOllamaToolCall extracts name and arguments from an Ollama call.
func ConvertFromOllamaToolCall(call api.ToolCall) (string, map[string]any) {
	return call.Function.Name, map[string]any(call.Function.Arguments)
}

// ConvertToOpenAIMessages converts turns to openai-go message params.
//
// Assistant turns that requested tools carry their calls so the follow-up
// tool messages can reference them by ID, as the chat completions API
// requires.
func ConvertToOpenAIMessages(turns []model.Turn) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			result = append(result, openai.UserMessage(t.Content))
		case model.RoleAssistant:
			if len(t.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(t.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if t.Content != "" {
				assistant.Content.OfString = openai.String(t.Content)
			}
			for _, call := range t.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: rawArguments(call),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			result = append(result, openai.ToolMessage(t.Content, toolCallID(t)))
		}
	}
	return result
}

// ConvertToGoOpenAIMessages converts turns to go-openai messages (Groq).
func ConvertToGoOpenAIMessages(turns []model.Turn) []goopenai.ChatCompletionMessage {
	result := make([]goopenai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msg := goopenai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		}
		switch t.Role {
		case model.RoleAssistant:
			for _, call := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
					ID:   call.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      call.Name,
						Arguments: rawArguments(call),
					},
				})
			}
		case model.RoleTool:
			msg.ToolCallID = toolCallID(t)
		}
		result = append(result, msg)
	}
	return result
}

// ConvertToAnthropicMessages converts turns to Anthropic message params.
//
// Anthropic expects tool results as tool_result blocks inside a user
// message, and all results for one assistant turn in the same message, so
// consecutive tool turns are merged.
func ConvertToAnthropicMessages(turns []model.Turn) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(turns))
	for i := 0; i < len(turns); i++ {
		t := turns[i]
		switch t.Role {
		case model.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Content))
			}
			for _, call := range t.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, callArguments(call), call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case model.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for ; i < len(turns) && turns[i].Role == model.RoleTool; i++ {
				tt := turns[i]
				isError := tt.ToolResult != nil && tt.ToolResult.IsError
				blocks = append(blocks, anthropic.NewToolResultBlock(toolCallID(tt), tt.Content, isError))
			}
			i--
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

// ConvertToGeminiContents converts turns to genai contents.
//
// Gemini pairs function responses with calls by name. Consecutive tool turns
// are merged into one user content, mirroring how the model emitted them.
func ConvertToGeminiContents(turns []model.Turn) []*genai.Content {
	result := make([]*genai.Content, 0, len(turns))
	for i := 0; i < len(turns); i++ {
		t := turns[i]
		switch t.Role {
		case model.RoleUser:
			result = append(result, genai.NewContentFromText(t.Content, genai.RoleUser))
		case model.RoleAssistant:
			var parts []*genai.Part
			if t.Content != "" {
				parts = append(parts, genai.NewPartFromText(t.Content))
			}
			for _, call := range t.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(call.Name, callArguments(call)))
			}
			if len(parts) == 0 {
				continue
			}
			result = append(result, genai.NewContentFromParts(parts, genai.RoleModel))
		case model.RoleTool:
			var parts []*genai.Part
			for ; i < len(turns) && turns[i].Role == model.RoleTool; i++ {
				tt := turns[i]
				name := ""
				key := "output"
				if tt.ToolResult != nil {
					name = tt.ToolResult.ToolName
					if tt.ToolResult.IsError {
						key = "error"
					}
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(name, map[string]any{key: tt.Content}))
			}
			i--
			result = append(result, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return result
}

// callArguments returns a call's arguments as a map, decoding RawArguments
// when the map was not populated.
func callArguments(call model.ToolCall) map[string]any {
	if call.Arguments != nil {
		return call.Arguments
	}
	args, err := ParseToolArguments(call.RawArguments)
	if err != nil {
		return map[string]any{}
	}
	return args
}

// rawArguments returns a call's arguments as a JSON string.
func rawArguments(call model.ToolCall) string {
	if call.RawArguments != "" {
		return call.RawArguments
	}
	b, err := json.Marshal(callArguments(call))
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toolCallID(t model.Turn) string {
	if t.ToolResult == nil {
		return ""
	}
	return t.ToolResult.CallID
}
