// Package orchestrator runs conversations: it streams assistant output,
// executes requested tools and commits finished turns to history.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"deepchat/model"
)

// State is a conversation's position in the request cycle.
type State int

const (
	Idle State = iota
	AwaitingResponse
	StreamingText
	AwaitingToolResult
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingResponse:
		return "AwaitingResponse"
	case StreamingText:
		return "StreamingText"
	case AwaitingToolResult:
		return "AwaitingToolResult"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrDeleted is returned by calls on a conversation that has been deleted.
var ErrDeleted = errors.New("conversation has been deleted")

// accepting reports whether a new message may be sent in s.
func (s State) accepting() bool {
	return s == Idle || s == Failed
}

// EventType tags an Event.
type EventType int

const (
	EventStateChanged EventType = iota
	EventDelta
	EventTurnFinalized
	EventToolInvoked
	// EventConversationChanged fires when the title or selection changes.
	EventConversationChanged
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state"
	case EventDelta:
		return "delta"
	case EventTurnFinalized:
		return "turn"
	case EventToolInvoked:
		return "tool"
	case EventConversationChanged:
		return "conversation"
	default:
		return "unknown"
	}
}

// Event reports progress to a presentation layer. Only the fields relevant
// to Type are set: State for StateChanged (and Err when entering Failed),
// Delta for Delta, Turn for TurnFinalized and ToolInvoked, Conversation for
// ConversationChanged.
type Event struct {
	Type           EventType
	ConversationID string
	State          State
	Delta          model.Delta
	Turn           model.Turn
	Conversation   model.Conversation
	Err            error
}

// ProviderResolver finds the adapter for a provider. *provider.Registry
// implements it.
type ProviderResolver interface {
	Get(id string) (model.Provider, model.Adapter, error)
}

// CredentialSource yields the credential a provider needs.
// *config.CredentialStore implements it.
type CredentialSource interface {
	Require(p model.Provider) (model.Credential, error)
}

// ToolSource lists and runs tools. *mcp.Bridge implements it.
type ToolSource interface {
	Tools() []model.ToolDescriptor
	Invoke(ctx context.Context, name string, args map[string]any) (model.ToolResult, error)
}

// ModelLookup reports model capabilities. *catalog.Catalog implements it.
type ModelLookup interface {
	Lookup(sel model.Selection) (model.ModelDescriptor, bool)
}

// HistoryStore persists turns in append order.
type HistoryStore interface {
	Append(ctx context.Context, conversationID string, turn model.Turn) error
	List(ctx context.Context, conversationID string) ([]model.Turn, error)
	Delete(ctx context.Context, conversationID string) error
}

// Deps are the collaborators an orchestrator works with. Tools and Models
// may be nil.
type Deps struct {
	Providers   ProviderResolver
	Credentials CredentialSource
	Tools       ToolSource
	Models      ModelLookup
	History     HistoryStore
}

const (
	DefaultMaxToolIterations = 10
	DefaultStreamIdleTimeout = 60 * time.Second
)

// Options tune an orchestrator.
type Options struct {
	// MaxToolIterations bounds the tool rounds one Send may run.
	MaxToolIterations int
	// StreamIdleTimeout fails a stream that delivers nothing for this long.
	StreamIdleTimeout time.Duration
	// OnEvent receives every event synchronously, in order, on the
	// goroutine running Send. It must not call Send.
	OnEvent func(Event)
}

func (o Options) withDefaults() Options {
	if o.MaxToolIterations <= 0 {
		o.MaxToolIterations = DefaultMaxToolIterations
	}
	if o.StreamIdleTimeout <= 0 {
		o.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	return o
}
