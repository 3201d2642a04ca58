package testutil

import (
	"context"
	"sync"

	"deepchat/model"
)

// Script is the canned response for one StreamChat call.
type Script struct {
	Deltas []model.Delta

	// Before, when set, is waited on before the first delta is sent.
	Before <-chan struct{}

	// Hang keeps the stream open after Deltas until it is closed or its
	// context ends, like a provider that stopped sending.
	Hang bool
}

// ChatCall records the arguments of one StreamChat call.
type ChatCall struct {
	Cred    model.Credential
	ModelID string
	Turns   []model.Turn
	Tools   []model.ToolDescriptor
}

// ScriptedAdapter implements model.Adapter for testing. Each StreamChat call
// plays the next Script; ListModels returns Models or ListErr.
type ScriptedAdapter struct {
	FamilyValue model.Family
	Models      []model.ModelDescriptor
	ListErr     error
	ListFunc    func(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error)

	mu        sync.Mutex
	scripts   []Script
	calls     []ChatCall
	listCalls int
}

// NewScriptedAdapter creates an adapter that plays scripts in order.
func NewScriptedAdapter(scripts ...Script) *ScriptedAdapter {
	return &ScriptedAdapter{
		FamilyValue: model.FamilyOpenAICompatible,
		scripts:     scripts,
	}
}

// Push appends scripts to the queue.
func (a *ScriptedAdapter) Push(scripts ...Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts = append(a.scripts, scripts...)
}

// Calls returns a copy of the recorded StreamChat calls.
func (a *ScriptedAdapter) Calls() []ChatCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ChatCall(nil), a.calls...)
}

// ListCalls returns how many times ListModels ran.
func (a *ScriptedAdapter) ListCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

func (a *ScriptedAdapter) Family() model.Family {
	return a.FamilyValue
}

func (a *ScriptedAdapter) ListModels(ctx context.Context, cred model.Credential) ([]model.ModelDescriptor, error) {
	a.mu.Lock()
	a.listCalls++
	a.mu.Unlock()

	if a.ListFunc != nil {
		return a.ListFunc(ctx, cred)
	}
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	return append([]model.ModelDescriptor(nil), a.Models...), nil
}

func (a *ScriptedAdapter) StreamChat(ctx context.Context, cred model.Credential, modelID string, turns []model.Turn, tools []model.ToolDescriptor) model.Stream {
	a.mu.Lock()
	a.calls = append(a.calls, ChatCall{
		Cred:    cred,
		ModelID: modelID,
		Turns:   append([]model.Turn(nil), turns...),
		Tools:   append([]model.ToolDescriptor(nil), tools...),
	})
	var script Script
	if len(a.scripts) > 0 {
		script = a.scripts[0]
		a.scripts = a.scripts[1:]
	} else {
		script = Script{Deltas: []model.Delta{
			model.ErrorDelta(model.NewError(model.KindProtocol, "no scripted response left")),
		}}
	}
	a.mu.Unlock()

	return PlayScript(ctx, script)
}

// PlayScript returns a stream that replays script.
func PlayScript(ctx context.Context, script Script) model.Stream {
	s := &scriptedStream{
		ch:       make(chan model.Delta),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	go func() {
		defer close(s.finished)
		defer close(s.ch)

		if script.Before != nil {
			select {
			case <-script.Before:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		for _, d := range script.Deltas {
			select {
			case s.ch <- d:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if script.Hang {
			select {
			case <-s.stop:
			case <-ctx.Done():
			}
		}
	}()

	return s
}

type scriptedStream struct {
	ch       chan model.Delta
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
	cur      model.Delta
	done     bool
}

func (s *scriptedStream) Next() bool {
	if s.done {
		return false
	}
	d, ok := <-s.ch
	if !ok {
		s.done = true
		return false
	}
	s.cur = d
	if d.Terminal() {
		s.done = true
	}
	return true
}

func (s *scriptedStream) Current() model.Delta {
	return s.cur
}

func (s *scriptedStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.finished
	return nil
}
