package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"deepchat/config"
	"deepchat/model"
)

// Orchestrator drives a single conversation. At most one Send runs at a
// time; a second one is rejected with Busy rather than queued.
type Orchestrator struct {
	deps Deps
	opts Options

	mu     sync.Mutex
	conv   model.Conversation
	turns  []model.Turn
	state  State
	err    error
	cancel context.CancelFunc
	// closed is set once the conversation is deleted.
	closed bool
}

// New opens conv, loading its committed turns from history.
func New(ctx context.Context, conv model.Conversation, deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Providers == nil || deps.Credentials == nil || deps.History == nil {
		return nil, fmt.Errorf("orchestrator needs providers, credentials and history")
	}
	if conv.ID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}

	turns, err := deps.History.List(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", conv.ID, err)
	}

	return &Orchestrator{
		deps:  deps,
		opts:  opts.withDefaults(),
		conv:  conv,
		turns: turns,
		state: Idle,
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error that put the conversation in Failed, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Conversation returns the conversation header.
func (o *Orchestrator) Conversation() model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv
}

// Turns returns a copy of the committed turns.
func (o *Orchestrator) Turns() []model.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Turn(nil), o.turns...)
}

// Select changes the provider and model used by the next Send.
func (o *Orchestrator) Select(sel model.Selection) error {
	if sel.IsZero() {
		return fmt.Errorf("invalid model selection %q", sel)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrDeleted
	}
	if !o.state.accepting() {
		o.mu.Unlock()
		return model.NewError(model.KindBusy, "cannot change model while a response is in progress")
	}
	o.conv.ProviderID = sel.ProviderID
	o.conv.ModelID = sel.ModelID
	o.conv.UpdatedAt = time.Now()
	conv := o.conv
	o.mu.Unlock()

	o.emit(Event{Type: EventConversationChanged, Conversation: conv})
	return nil
}

// Cancel aborts the in-flight Send, if any. The conversation returns to
// Idle with nothing from the aborted request committed.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// close marks the conversation deleted so later calls are rejected. It
// fails with Busy while a request is in flight.
func (o *Orchestrator) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.accepting() {
		return model.NewError(model.KindBusy, "conversation %s has a response in progress", o.conv.ID)
	}
	o.closed = true
	return nil
}

// Send appends a user turn and runs the request cycle to completion,
// executing tool calls until the model answers with text.
//
// It returns Busy without touching state unless the conversation is Idle or
// Failed, and ErrDeleted once the conversation has been deleted.
// Cancellation returns the context's error and leaves the conversation
// Idle. Any other error leaves it Failed and carries the failure kind.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrDeleted
	}
	if !o.state.accepting() {
		state := o.state
		o.mu.Unlock()
		return model.NewError(model.KindBusy, "conversation is %s", state)
	}
	if strings.TrimSpace(text) == "" {
		o.mu.Unlock()
		return fmt.Errorf("message is empty")
	}
	o.state = AwaitingResponse
	o.err = nil
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.emit(Event{Type: EventStateChanged, State: AwaitingResponse})

	user := model.NewUserTurn(text)
	if err := o.commit(ctx, user); err != nil {
		return o.finish(ctx, err)
	}
	o.retitle(text)

	return o.finish(ctx, o.run(ctx))
}

// run loops stream, invoke tools, stream again until the model produces a
// final answer.
func (o *Orchestrator) run(ctx context.Context) error {
	conv := o.Conversation()
	sel := conv.Selection()
	if sel.IsZero() {
		return model.NewError(model.KindNotConfigured, "no model selected")
	}

	p, adapter, err := o.deps.Providers.Get(sel.ProviderID)
	if err != nil {
		return err
	}
	cred, err := o.deps.Credentials.Require(p)
	if err != nil {
		return err
	}

	for round := 0; ; round++ {
		if round > 0 {
			o.setState(AwaitingResponse)
		}

		tools := o.availableTools(sel)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Orchestrator] %s: stream_chat %s round %d with %d tools", conv.ID, sel, round, len(tools))
		}

		stream := adapter.StreamChat(ctx, cred, sel.ModelID, o.Turns(), tools)
		reply, err := o.consume(ctx, stream)
		if err != nil {
			return err
		}

		if len(reply.calls) == 0 {
			return o.commit(ctx, model.NewAssistantTurn(reply.text, nil))
		}

		if round >= o.opts.MaxToolIterations {
			return model.NewError(model.KindToolLoopExceeded, "model requested tools after %d rounds", o.opts.MaxToolIterations)
		}

		assistant := model.NewAssistantTurn(reply.text, reply.calls)
		results := make([]model.Turn, 0, len(reply.calls))
		for _, call := range reply.calls {
			turn, err := o.invoke(ctx, call)
			if err != nil {
				return err
			}
			results = append(results, turn)
		}

		// The round is committed only once every call has a result.
		if err := o.commit(ctx, append([]model.Turn{assistant}, results...)...); err != nil {
			return err
		}
	}
}

// availableTools returns the discovered tools, or none when the catalog
// knows the selected model cannot call tools.
func (o *Orchestrator) availableTools(sel model.Selection) []model.ToolDescriptor {
	if o.deps.Tools == nil {
		return nil
	}
	if o.deps.Models != nil {
		if m, ok := o.deps.Models.Lookup(sel); ok && !m.SupportsTools {
			return nil
		}
	}
	return o.deps.Tools.Tools()
}

// invoke runs one tool call and wraps the outcome in a tool turn. Tool
// failures become error results for the model to read; only cancellation
// is returned as an error.
func (o *Orchestrator) invoke(ctx context.Context, call model.ToolCall) (model.Turn, error) {
	result := model.ToolResult{CallID: call.ID, ToolName: call.Name}

	switch {
	case o.deps.Tools == nil:
		err := model.NewError(model.KindTool, "no tools are available")
		result.Content, result.IsError, result.ErrorKind = err.Error(), true, err.Kind

	case call.Arguments == nil && strings.TrimSpace(call.RawArguments) != "":
		err := model.NewError(model.KindSchemaViolation, "arguments for %s are not a JSON object", call.Name)
		result.Content, result.IsError, result.ErrorKind = err.Error(), true, err.Kind

	default:
		res, err := o.deps.Tools.Invoke(ctx, call.Name, call.Arguments)
		if ctx.Err() != nil {
			return model.Turn{}, ctx.Err()
		}
		if err != nil {
			kind := model.KindOf(err)
			if kind == "" {
				kind = model.KindTool
			}
			res.IsError = true
			res.ErrorKind = kind
			if res.Content == "" {
				res.Content = err.Error()
			}
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Orchestrator] Tool %s failed: %v", call.Name, err)
			}
		}
		res.CallID = call.ID
		res.ToolName = call.Name
		result = res
	}

	turn := model.NewToolTurn(result)
	o.emit(Event{Type: EventToolInvoked, Turn: turn})
	return turn, nil
}

// commit persists turns in order and makes each visible once stored.
func (o *Orchestrator) commit(ctx context.Context, turns ...model.Turn) error {
	conv := o.Conversation()
	for _, t := range turns {
		// History writes are not cancellable halfway through a round.
		if err := o.deps.History.Append(context.WithoutCancel(ctx), conv.ID, t); err != nil {
			return fmt.Errorf("failed to persist turn: %w", err)
		}
		o.mu.Lock()
		o.turns = append(o.turns, t)
		o.conv.UpdatedAt = t.Timestamp
		o.mu.Unlock()

		o.emit(Event{Type: EventTurnFinalized, Turn: t})
	}
	return nil
}

// retitle names the conversation after its first user message.
func (o *Orchestrator) retitle(text string) {
	o.mu.Lock()
	if o.conv.Title != "" && o.conv.Title != model.DefaultTitle {
		o.mu.Unlock()
		return
	}
	o.conv.Title = model.TitleFromMessage(text)
	conv := o.conv
	o.mu.Unlock()

	o.emit(Event{Type: EventConversationChanged, Conversation: conv})
}

// finish settles the state after a Send. Cancellation goes back to Idle;
// any other error goes to Failed.
func (o *Orchestrator) finish(ctx context.Context, err error) error {
	switch {
	case err == nil:
		o.setState(Idle)
		return nil

	case ctx.Err() != nil:
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Orchestrator] %s: request cancelled", o.Conversation().ID)
		}
		o.setState(Idle)
		return ctx.Err()

	default:
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Orchestrator] %s: failed: %v", o.Conversation().ID, err)
		}
		o.setStateErr(Failed, err)
		return err
	}
}

func (o *Orchestrator) setState(s State) {
	o.setStateErr(s, nil)
}

func (o *Orchestrator) setStateErr(s State, err error) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	id := o.conv.ID
	o.mu.Unlock()

	if prev == s {
		return
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Orchestrator] %s: state %s -> %s", id, prev, s)
	}
	o.emit(Event{Type: EventStateChanged, State: s, Err: err})
}

func (o *Orchestrator) emit(e Event) {
	if o.opts.OnEvent == nil {
		return
	}
	if e.ConversationID == "" {
		o.mu.Lock()
		e.ConversationID = o.conv.ID
		o.mu.Unlock()
	}
	o.opts.OnEvent(e)
}
