package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"deepchat/config"
	"deepchat/model"
)

// reply is a fully streamed assistant response.
type reply struct {
	text  string
	calls []model.ToolCall
}

// pendingCall accumulates one tool call while it streams.
type pendingCall struct {
	id    string
	name  string
	args  strings.Builder
	ended bool
}

// consume drains stream into a reply, moving the state along as the first
// deltas arrive. The stream is always closed before consume returns.
//
// A stream that goes quiet for longer than StreamIdleTimeout is closed and
// fails with ProtocolError.
func (o *Orchestrator) consume(ctx context.Context, stream model.Stream) (reply, error) {
	deltas := make(chan model.Delta)
	stop := make(chan struct{})
	pumped := make(chan struct{})

	go func() {
		defer close(pumped)
		defer close(deltas)
		for stream.Next() {
			select {
			case deltas <- stream.Current():
			case <-stop:
				return
			}
		}
	}()

	defer func() {
		close(stop)
		stream.Close()
		<-pumped
	}()

	idle := time.NewTimer(o.opts.StreamIdleTimeout)
	defer idle.Stop()

	var (
		text    strings.Builder
		calls   []*pendingCall
		byID    = make(map[string]*pendingCall)
		started bool
	)

	for {
		select {
		case <-ctx.Done():
			return reply{}, ctx.Err()

		case <-idle.C:
			return reply{}, model.NewError(model.KindProtocol, "no data from provider for %s", o.opts.StreamIdleTimeout)

		case d, ok := <-deltas:
			if !ok {
				if ctx.Err() != nil {
					return reply{}, ctx.Err()
				}
				return reply{}, model.NewError(model.KindProtocol, "stream ended without a terminal delta")
			}
			idle.Reset(o.opts.StreamIdleTimeout)

			switch d.Kind {
			case model.DeltaText:
				if !started {
					started = true
					o.setState(StreamingText)
				}
				text.WriteString(d.Text)

			case model.DeltaToolCallStart:
				if !started || o.State() == StreamingText {
					started = true
					o.setState(AwaitingToolResult)
				}
				if _, dup := byID[d.ToolCallID]; dup {
					return reply{}, model.NewError(model.KindProtocol, "tool call %s started twice", d.ToolCallID)
				}
				pc := &pendingCall{id: d.ToolCallID, name: d.ToolName}
				byID[d.ToolCallID] = pc
				calls = append(calls, pc)

			case model.DeltaToolCallArgs:
				pc, ok := byID[d.ToolCallID]
				if !ok || pc.ended {
					return reply{}, model.NewError(model.KindProtocol, "arguments for unknown tool call %s", d.ToolCallID)
				}
				pc.args.WriteString(d.Args)

			case model.DeltaToolCallEnd:
				pc, ok := byID[d.ToolCallID]
				if !ok {
					return reply{}, model.NewError(model.KindProtocol, "end of unknown tool call %s", d.ToolCallID)
				}
				pc.ended = true

			case model.DeltaDone:
				return finalize(text.String(), calls)

			case model.DeltaError:
				if d.Err == nil {
					return reply{}, model.NewError(model.KindProtocol, "provider reported an unspecified error")
				}
				return reply{}, d.Err
			}

			o.emit(Event{Type: EventDelta, Delta: d})
		}
	}
}

// finalize turns the accumulated calls into ToolCalls in emission order.
func finalize(text string, pending []*pendingCall) (reply, error) {
	r := reply{text: text}
	for _, pc := range pending {
		if !pc.ended {
			return reply{}, model.NewError(model.KindProtocol, "stream finished inside tool call %s", pc.id)
		}
		call := model.ToolCall{
			ID:           pc.id,
			Name:         pc.name,
			RawArguments: pc.args.String(),
		}
		call.Arguments = parseArguments(call.RawArguments)
		r.calls = append(r.calls, call)
	}
	return r, nil
}

// parseArguments decodes a call's JSON arguments. Empty arguments are an
// empty object; anything that is not a JSON object yields nil.
func parseArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Orchestrator] Unparseable tool arguments: %v", err)
		}
		return nil
	}
	return args
}
