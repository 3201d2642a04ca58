package testutil

import (
	"time"

	"deepchat/model"
)

// TestTurns returns a short finished exchange for testing.
func TestTurns() []model.Turn {
	return []model.Turn{
		{
			ID:        "turn-1",
			Role:      model.RoleUser,
			Content:   "Hello, how are you?",
			Timestamp: time.Now(),
		},
		{
			ID:        "turn-2",
			Role:      model.RoleAssistant,
			Content:   "I'm doing well, thank you!",
			Timestamp: time.Now(),
		},
		{
			ID:        "turn-3",
			Role:      model.RoleUser,
			Content:   "Can you help me with a task?",
			Timestamp: time.Now(),
		},
	}
}

// ToolExchangeTurns returns a user question, an assistant turn asking for a
// tool and the tool's answer.
func ToolExchangeTurns() []model.Turn {
	return []model.Turn{
		{ID: "turn-1", Role: model.RoleUser, Content: "What's the weather in Paris?", Timestamp: time.Now()},
		{
			ID:   "turn-2",
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				ID:           "call_1",
				Name:         "weather__get_weather",
				Arguments:    map[string]any{"location": "Paris"},
				RawArguments: `{"location":"Paris"}`,
			}},
			Timestamp: time.Now(),
		},
		{
			ID:      "turn-3",
			Role:    model.RoleTool,
			Content: "18C and sunny",
			ToolResult: &model.ToolResult{
				CallID:   "call_1",
				ToolName: "weather__get_weather",
				Content:  "18C and sunny",
			},
			Timestamp: time.Now(),
		},
	}
}

// TestTools returns sample tool descriptors for testing.
func TestTools() []model.ToolDescriptor {
	return []model.ToolDescriptor{
		{
			Name:        "weather__get_weather",
			ServerID:    "weather",
			ToolName:    "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				"required": []any{"location"},
			},
		},
		{
			Name:        "calc__calculate",
			ServerID:    "calc",
			ToolName:    "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				"required": []any{"expression"},
			},
		},
	}
}

// TextScript streams chunks as text and finishes.
func TextScript(chunks ...string) Script {
	deltas := make([]model.Delta, 0, len(chunks)+1)
	for _, c := range chunks {
		deltas = append(deltas, model.TextDelta(c))
	}
	return Script{Deltas: append(deltas, model.DoneDelta())}
}

// ToolCallScript streams one complete tool call and finishes.
func ToolCallScript(id, name, args string) Script {
	return Script{Deltas: []model.Delta{
		model.ToolCallStartDelta(id, name),
		model.ToolCallArgsDelta(id, args),
		model.ToolCallEndDelta(id),
		model.DoneDelta(),
	}}
}

// ErrorScript fails with kind after streaming any leading text.
func ErrorScript(kind model.Kind, leading ...string) Script {
	s := TextScript(leading...)
	s.Deltas[len(s.Deltas)-1] = model.ErrorDelta(model.NewError(kind, "scripted %s", kind))
	return s
}
