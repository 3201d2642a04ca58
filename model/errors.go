package model

import (
	"errors"
	"fmt"
)

// Kind classifies failures across adapters, the tool bridge and the
// orchestrator. Every kind maps to a distinct user-facing hint.
type Kind string

const (
	KindNotConfigured       Kind = "NotConfigured"
	KindAuth                Kind = "AuthError"
	KindProviderUnreachable Kind = "ProviderUnreachable"
	KindRateLimited         Kind = "RateLimited"
	KindProtocol            Kind = "ProtocolError"
	KindSchemaViolation     Kind = "SchemaViolation"
	KindToolTimeout         Kind = "ToolTimeout"
	KindTool                Kind = "ToolError"
	KindToolLoopExceeded    Kind = "ToolLoopExceeded"
	KindBusy                Kind = "Busy"
)

// Hint returns the actionable message shown to users for k.
func (k Kind) Hint() string {
	switch k {
	case KindNotConfigured:
		return "add an API key for this provider in settings"
	case KindAuth:
		return "check the API key"
	case KindProviderUnreachable:
		return "check the network connection and base URL"
	case KindRateLimited:
		return "the provider is rate limiting requests, wait a moment and retry"
	case KindProtocol:
		return "the provider sent an unexpected response, retry or pick another model"
	case KindSchemaViolation:
		return "the model produced arguments the tool does not accept"
	case KindToolTimeout:
		return "the tool server did not answer in time"
	case KindTool:
		return "the tool reported a failure"
	case KindToolLoopExceeded:
		return "the model kept calling tools, rephrase the request or raise max_tool_iterations"
	case KindBusy:
		return "wait for the current response to finish or cancel it"
	default:
		return "unexpected error"
	}
}

// Error is a classified failure. Provider is set when the failure came from
// a specific backend or tool server.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Provider, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the per-kind sentinels, so errors.Is(err, ErrBusy) works on any
// *Error of kind Busy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Provider == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotConfigured       = &Error{Kind: KindNotConfigured}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrProviderUnreachable = &Error{Kind: KindProviderUnreachable}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrProtocol            = &Error{Kind: KindProtocol}
	ErrSchemaViolation     = &Error{Kind: KindSchemaViolation}
	ErrToolTimeout         = &Error{Kind: KindToolTimeout}
	ErrTool                = &Error{Kind: KindTool}
	ErrToolLoopExceeded    = &Error{Kind: KindToolLoopExceeded}
	ErrBusy                = &Error{Kind: KindBusy}
)

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An err that already carries a kind keeps it.
func Wrap(kind Kind, provider string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the kind carried by err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// UserMessage renders err for display, appending the hint for its kind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Error(), e.Kind.Hint())
}
