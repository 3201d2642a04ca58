package provider

import (
	"encoding/json"
	"testing"

	"deepchat/model"
	"deepchat/provider/testutil"
)

func TestConvertToOllamaMessages(t *testing.T) {
	tests := []struct {
		name      string
		input     []model.Turn
		wantRoles []string
	}{
		{
			name:      "empty slice",
			input:     []model.Turn{},
			wantRoles: []string{},
		},
		{
			name:      "plain exchange",
			input:     testutil.TestTurns(),
			wantRoles: []string{"user", "assistant", "user"},
		},
		{
			name:      "tool exchange",
			input:     testutil.ToolExchangeTurns(),
			wantRoles: []string{"user", "assistant", "tool"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertToOllamaMessages(tt.input)

			if len(result) != len(tt.wantRoles) {
				t.Fatalf("length mismatch: got %d, want %d", len(result), len(tt.wantRoles))
			}
			for i, msg := range result {
				if msg.Role != tt.wantRoles[i] {
					t.Errorf("message %d role: got %q, want %q", i, msg.Role, tt.wantRoles[i])
				}
				if msg.Content != tt.input[i].Content {
					t.Errorf("message %d content: got %q, want %q", i, msg.Content, tt.input[i].Content)
				}
			}
		})
	}
}

func TestConvertToOllamaMessagesToolFields(t *testing.T) {
	result := ConvertToOllamaMessages(testutil.ToolExchangeTurns())

	if len(result[1].ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call on assistant message, got %d", len(result[1].ToolCalls))
	}
	name, args := ConvertFromOllamaToolCall(result[1].ToolCalls[0])
	if name != "weather__get_weather" {
		t.Errorf("tool call name: got %q", name)
	}
	if args["location"] != "Paris" {
		t.Errorf("tool call args: got %v", args)
	}
	if result[2].ToolName != "weather__get_weather" {
		t.Errorf("tool message name: got %q", result[2].ToolName)
	}
}

func TestConvertToOllamaToolCalls(t *testing.T) {
	if got := ConvertToOllamaToolCalls(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}

	calls := ConvertToOllamaToolCalls([]model.ToolCall{
		{ID: "a", Name: "search", RawArguments: `{"query":"golang"}`},
	})
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Function.Arguments["query"] != "golang" {
		t.Errorf("raw arguments were not decoded: %v", calls[0].Function.Arguments)
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	result := ConvertToOpenAIMessages(testutil.ToolExchangeTurns())
	if len(result) != 3 {
		t.Fatalf("length mismatch: got %d, want 3", len(result))
	}

	if result[0].OfUser == nil {
		t.Errorf("message 0: expected user message")
	}

	assistant := result[1].OfAssistant
	if assistant == nil {
		t.Fatalf("message 1: expected assistant message")
	}
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].OfFunction == nil {
		t.Fatalf("message 1: expected one function tool call, got %+v", assistant.ToolCalls)
	}
	fn := assistant.ToolCalls[0].OfFunction
	if fn.ID != "call_1" || fn.Function.Name != "weather__get_weather" {
		t.Errorf("tool call: got id=%q name=%q", fn.ID, fn.Function.Name)
	}
	if fn.Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("tool call arguments: got %q", fn.Function.Arguments)
	}

	tool := result[2].OfTool
	if tool == nil {
		t.Fatalf("message 2: expected tool message")
	}
	if tool.ToolCallID != "call_1" {
		t.Errorf("tool message call id: got %q", tool.ToolCallID)
	}
}

func TestConvertToGoOpenAIMessages(t *testing.T) {
	result := ConvertToGoOpenAIMessages(testutil.ToolExchangeTurns())
	if len(result) != 3 {
		t.Fatalf("length mismatch: got %d, want 3", len(result))
	}
	if len(result[1].ToolCalls) != 1 || result[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool calls: got %+v", result[1].ToolCalls)
	}
	if result[2].Role != "tool" || result[2].ToolCallID != "call_1" {
		t.Errorf("tool message: got role=%q call=%q", result[2].Role, result[2].ToolCallID)
	}
}

func TestConvertToAnthropicMessagesMergesToolResults(t *testing.T) {
	turns := append(testutil.ToolExchangeTurns(), model.Turn{
		Role:    model.RoleTool,
		Content: "boom",
		ToolResult: &model.ToolResult{
			CallID:  "call_2",
			Content: "boom",
			IsError: true,
		},
	})

	result := ConvertToAnthropicMessages(turns)
	if len(result) != 3 {
		t.Fatalf("expected user, assistant and one merged tool message, got %d", len(result))
	}

	if result[2].Role != "user" {
		t.Errorf("tool results must be sent as user message, got %q", result[2].Role)
	}
	if len(result[2].Content) != 2 {
		t.Fatalf("expected 2 tool_result blocks, got %d", len(result[2].Content))
	}
	for i, block := range result[2].Content {
		if block.OfToolResult == nil {
			t.Errorf("block %d: expected tool_result", i)
		}
	}
	if !result[2].Content[1].OfToolResult.IsError.Value {
		t.Errorf("second result should carry is_error")
	}

	if len(result[1].Content) != 1 || result[1].Content[0].OfToolUse == nil {
		t.Fatalf("assistant message should hold one tool_use block, got %+v", result[1].Content)
	}
	if result[1].Content[0].OfToolUse.ID != "call_1" {
		t.Errorf("tool_use id: got %q", result[1].Content[0].OfToolUse.ID)
	}
}

func TestConvertToGeminiContents(t *testing.T) {
	result := ConvertToGeminiContents(testutil.ToolExchangeTurns())
	if len(result) != 3 {
		t.Fatalf("length mismatch: got %d, want 3", len(result))
	}

	if result[1].Role != "model" {
		t.Errorf("assistant role: got %q, want model", result[1].Role)
	}
	call := result[1].Parts[0].FunctionCall
	if call == nil || call.Name != "weather__get_weather" {
		t.Fatalf("expected function call part, got %+v", result[1].Parts[0])
	}

	resp := result[2].Parts[0].FunctionResponse
	if resp == nil {
		t.Fatalf("expected function response part")
	}
	if resp.Response["output"] != "18C and sunny" {
		t.Errorf("function response: got %v", resp.Response)
	}
}

func TestRawArgumentsRoundTrip(t *testing.T) {
	call := model.ToolCall{Name: "x", Arguments: map[string]any{"n": float64(2)}}
	raw := rawArguments(call)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("rawArguments produced invalid JSON %q: %v", raw, err)
	}
	if decoded["n"] != float64(2) {
		t.Errorf("got %v", decoded)
	}
}
