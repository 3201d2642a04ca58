package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"deepchat/model"
)

// pendingCall is a tool call whose arguments are still streaming.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// callAssembler turns provider-specific tool call fragments into the
// normalized start/args/end delta sequence.
//
// OpenAI-style streams address calls by index and never say when one is
// finished, so open calls are closed on the finish reason. Anthropic closes
// each block explicitly. Gemini and Ollama deliver whole calls at once.
type callAssembler struct {
	emit emitFunc
	open map[int]*pendingCall
}

func newCallAssembler(emit emitFunc) *callAssembler {
	return &callAssembler{
		emit: emit,
		open: make(map[int]*pendingCall),
	}
}

// start opens the call at index. A missing ID is replaced with a generated one.
func (a *callAssembler) start(index int, id, name string) bool {
	if id == "" {
		id = newCallID()
	}
	a.open[index] = &pendingCall{id: id, name: name}
	return a.emit(model.ToolCallStartDelta(id, name))
}

// started reports whether the call at index is open.
func (a *callAssembler) started(index int) bool {
	_, ok := a.open[index]
	return ok
}

// args appends an argument fragment to the call at index.
func (a *callAssembler) args(index int, fragment string) (bool, error) {
	if fragment == "" {
		return true, nil
	}
	c, ok := a.open[index]
	if !ok {
		return false, model.NewError(model.KindProtocol, "tool call arguments for unknown call index %d", index)
	}
	c.args.WriteString(fragment)
	return a.emit(model.ToolCallArgsDelta(c.id, fragment)), nil
}

// end closes the call at index after checking its arguments are valid JSON.
func (a *callAssembler) end(index int) (bool, error) {
	c, ok := a.open[index]
	if !ok {
		return true, nil
	}
	delete(a.open, index)
	if raw := strings.TrimSpace(c.args.String()); raw != "" && !json.Valid([]byte(raw)) {
		return false, model.NewError(model.KindProtocol, "tool call %s (%s) has malformed arguments", c.name, c.id)
	}
	return a.emit(model.ToolCallEndDelta(c.id)), nil
}

// endAll closes every open call in index order.
func (a *callAssembler) endAll() (bool, error) {
	indexes := make([]int, 0, len(a.open))
	for i := range a.open {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		ok, err := a.end(i)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// whole emits a complete call in one go.
func (a *callAssembler) whole(id, name string, args map[string]any) (bool, error) {
	if id == "" {
		id = newCallID()
	}
	raw := "{}"
	if len(args) > 0 {
		b, err := json.Marshal(args)
		if err != nil {
			return false, fmt.Errorf("failed to encode tool call arguments: %w", err)
		}
		raw = string(b)
	}
	if !a.emit(model.ToolCallStartDelta(id, name)) {
		return false, nil
	}
	if !a.emit(model.ToolCallArgsDelta(id, raw)) {
		return false, nil
	}
	return a.emit(model.ToolCallEndDelta(id)), nil
}

// finish fails with ProtocolError when the stream ended mid call.
func (a *callAssembler) finish() error {
	for _, c := range a.open {
		return model.NewError(model.KindProtocol, "stream ended before tool call %s (%s) completed", c.name, c.id)
	}
	return nil
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// ParseToolArguments decodes a tool call's raw JSON arguments. Empty input
// decodes to an empty map.
func ParseToolArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
