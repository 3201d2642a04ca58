package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one immutable unit of a conversation.
//
// An assistant turn that asked for tools carries ToolCalls (and possibly some
// leading text in Content). A tool turn carries the ToolResult for exactly one
// of those calls.
type Turn struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall is a completed tool invocation request emitted by a model.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// ToolResult is the outcome of one tool call. Failed calls keep IsError set
// and record the failure kind so the model can see what went wrong.
type ToolResult struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
	ErrorKind Kind   `json:"error_kind,omitempty"`
}

// NewUserTurn builds a user turn stamped with a fresh ID and the current time.
func NewUserTurn(content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantTurn builds an assistant turn. calls may be nil.
func NewAssistantTurn(content string, calls []ToolCall) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		ToolCalls: calls,
	}
}

// NewToolTurn wraps a tool result in a turn.
func NewToolTurn(result ToolResult) Turn {
	return Turn{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Content:    result.Content,
		Timestamp:  time.Now(),
		ToolResult: &result,
	}
}

// IsToolRequest reports whether t is an assistant turn asking for tools.
func (t Turn) IsToolRequest() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls) > 0
}

// Conversation is the persisted header of a chat. Its turns live in the
// history store, keyed by ID.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ProviderID string    `json:"provider_id"`
	ModelID    string    `json:"model_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation bound to sel.
func NewConversation(sel Selection) Conversation {
	now := time.Now()
	return Conversation{
		ID:         uuid.NewString(),
		Title:      DefaultTitle,
		ProviderID: sel.ProviderID,
		ModelID:    sel.ModelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Selection returns the conversation's active provider and model.
func (c Conversation) Selection() Selection {
	return Selection{ProviderID: c.ProviderID, ModelID: c.ModelID}
}

// DefaultTitle names a conversation before its first message.
const DefaultTitle = "New Chat"

const titleLength = 20

// TitleFromMessage derives a conversation title from the first user message.
func TitleFromMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return DefaultTitle
	}
	runes := []rune(msg)
	if len(runes) <= titleLength {
		return msg
	}
	return string(runes[:titleLength]) + "..."
}
