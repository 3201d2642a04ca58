package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/model"
	"deepchat/provider/testutil"
	"deepchat/storage"
)

type fakeProviders map[string]*testutil.ScriptedAdapter

func (f fakeProviders) Get(id string) (model.Provider, model.Adapter, error) {
	a, ok := f[id]
	if !ok {
		return model.Provider{}, nil, model.NewError(model.KindNotConfigured, "unknown provider %q", id)
	}
	return model.Provider{ID: id, Family: a.FamilyValue}, a, nil
}

type fakeCredentials map[string]string

func (f fakeCredentials) Require(p model.Provider) (model.Credential, error) {
	key, ok := f[p.ID]
	if !ok {
		return model.Credential{}, model.NewError(model.KindNotConfigured, "no API key configured for %s", p.ID)
	}
	return model.Credential{ProviderID: p.ID, APIKey: key}, nil
}

type invocation struct {
	name string
	args map[string]any
}

type fakeTools struct {
	mu     sync.Mutex
	tools  []model.ToolDescriptor
	calls  []invocation
	invoke func(ctx context.Context, name string, args map[string]any) (model.ToolResult, error)
}

func (f *fakeTools) Tools() []model.ToolDescriptor {
	return f.tools
}

func (f *fakeTools) Invoke(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{name: name, args: args})
	f.mu.Unlock()
	if f.invoke != nil {
		return f.invoke(ctx, name, args)
	}
	return model.ToolResult{ToolName: name, Content: "18C and sunny"}, nil
}

func (f *fakeTools) invocations() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

type models map[model.Selection]model.ModelDescriptor

func (m models) Lookup(sel model.Selection) (model.ModelDescriptor, bool) {
	d, ok := m[sel]
	return d, ok
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, e := range r.events {
		if e.Type == EventStateChanged {
			out = append(out, e.State)
		}
	}
	return out
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	orch    *Orchestrator
	adapter *testutil.ScriptedAdapter
	tools   *fakeTools
	history *storage.MemoryStore
	events  *recorder
	conv    model.Conversation
}

func newHarness(t *testing.T, opts Options, scripts ...testutil.Script) *harness {
	t.Helper()

	h := &harness{
		adapter: testutil.NewScriptedAdapter(scripts...),
		tools:   &fakeTools{tools: testutil.TestTools()},
		history: storage.NewMemoryStore(),
		events:  &recorder{},
		conv:    model.NewConversation(model.Selection{ProviderID: "openai", ModelID: "gpt-4o"}),
	}
	opts.OnEvent = h.events.record

	deps := Deps{
		Providers:   fakeProviders{"openai": h.adapter},
		Credentials: fakeCredentials{"openai": "sk-test"},
		Tools:       h.tools,
		History:     h.history,
	}

	orch, err := New(context.Background(), h.conv, deps, opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) stored(t *testing.T) []model.Turn {
	t.Helper()
	turns, err := h.history.List(context.Background(), h.conv.ID)
	require.NoError(t, err)
	return turns
}

func roles(turns []model.Turn) []model.Role {
	out := make([]model.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestSendText(t *testing.T) {
	h := newHarness(t, Options{}, testutil.TextScript("Hello", ", ", "world"))

	require.NoError(t, h.orch.Send(context.Background(), "Hi there"))

	assert.Equal(t, Idle, h.orch.State())
	turns := h.stored(t)
	require.Len(t, turns, 2)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(turns))
	assert.Equal(t, "Hi there", turns[0].Content)
	assert.Equal(t, "Hello, world", turns[1].Content)
	assert.Equal(t, turns, h.orch.Turns())

	assert.Equal(t, []State{AwaitingResponse, StreamingText, Idle}, h.events.states())
	assert.Equal(t, 3, h.events.count(EventDelta))
	assert.Equal(t, 2, h.events.count(EventTurnFinalized))

	calls := h.adapter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sk-test", calls[0].Cred.APIKey)
	assert.Equal(t, "gpt-4o", calls[0].ModelID)
	assert.Len(t, calls[0].Turns, 1, "the adapter sees the committed user turn")
	assert.Len(t, calls[0].Tools, 2)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Error(t, h.orch.Send(context.Background(), "  "))
	assert.Equal(t, Idle, h.orch.State())
	assert.Empty(t, h.stored(t))
}

func TestToolRoundTrip(t *testing.T) {
	h := newHarness(t, Options{},
		testutil.ToolCallScript("call_1", "weather__get_weather", `{"location":"Paris"}`),
		testutil.TextScript("It is 18C and sunny in Paris."),
	)

	require.NoError(t, h.orch.Send(context.Background(), "Weather in Paris?"))

	turns := h.stored(t)
	require.Len(t, turns, 4)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleAssistant}, roles(turns))

	require.Len(t, turns[1].ToolCalls, 1)
	assert.Equal(t, "Paris", turns[1].ToolCalls[0].Arguments["location"])
	require.NotNil(t, turns[2].ToolResult)
	assert.Equal(t, "call_1", turns[2].ToolResult.CallID)
	assert.Equal(t, "18C and sunny", turns[2].Content)
	assert.False(t, turns[2].ToolResult.IsError)
	assert.Equal(t, "It is 18C and sunny in Paris.", turns[3].Content)

	invs := h.tools.invocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "weather__get_weather", invs[0].name)

	calls := h.adapter.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Turns, 3, "second request carries the tool result")

	assert.Equal(t, []State{AwaitingResponse, AwaitingToolResult, AwaitingResponse, StreamingText, Idle}, h.events.states())
	assert.Equal(t, 1, h.events.count(EventToolInvoked))
}

func TestMultipleToolCallsRunInOrder(t *testing.T) {
	two := testutil.Script{Deltas: []model.Delta{
		model.TextDelta("Let me check both."),
		model.ToolCallStartDelta("a", "weather__get_weather"),
		model.ToolCallArgsDelta("a", `{"location":`),
		model.ToolCallArgsDelta("a", `"Oslo"}`),
		model.ToolCallEndDelta("a"),
		model.ToolCallStartDelta("b", "calc__calculate"),
		model.ToolCallArgsDelta("b", `{"expression":"2+2"}`),
		model.ToolCallEndDelta("b"),
		model.DoneDelta(),
	}}
	h := newHarness(t, Options{}, two, testutil.TextScript("done"))

	require.NoError(t, h.orch.Send(context.Background(), "go"))

	invs := h.tools.invocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "weather__get_weather", invs[0].name)
	assert.Equal(t, "Oslo", invs[0].args["location"])
	assert.Equal(t, "calc__calculate", invs[1].name)

	turns := h.stored(t)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleTool, model.RoleAssistant}, roles(turns))
	assert.Equal(t, "Let me check both.", turns[1].Content)
	assert.Equal(t, "a", turns[2].ToolResult.CallID)
	assert.Equal(t, "b", turns[3].ToolResult.CallID)
}

func TestBusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	script := testutil.TextScript("ok")
	script.Before = release
	h := newHarness(t, Options{}, script)

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "first") }()

	require.Eventually(t, func() bool { return len(h.adapter.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, AwaitingResponse, h.orch.State())

	err := h.orch.Send(context.Background(), "second")
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.Equal(t, AwaitingResponse, h.orch.State(), "a rejected send leaves state alone")

	err = h.orch.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, model.ErrBusy, "busy is reported before input is validated")

	err = h.orch.Select(model.Selection{ProviderID: "openai", ModelID: "gpt-4o-mini"})
	assert.ErrorIs(t, err, model.ErrBusy)

	close(release)
	require.NoError(t, <-done)

	turns := h.stored(t)
	assert.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
}

func TestCancelDiscardsPartialOutput(t *testing.T) {
	script := testutil.Script{
		Deltas: []model.Delta{model.TextDelta("partial "), model.TextDelta("answer")},
		Hang:   true,
	}
	h := newHarness(t, Options{}, script)

	streaming := make(chan struct{})
	var once sync.Once
	h.orch.opts.OnEvent = func(e Event) {
		h.events.record(e)
		if e.Type == EventDelta {
			once.Do(func() { close(streaming) })
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "tell me a story") }()

	<-streaming
	assert.Equal(t, StreamingText, h.orch.State())
	h.orch.Cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Idle, h.orch.State())
	assert.NoError(t, h.orch.Err())

	turns := h.stored(t)
	require.Len(t, turns, 1, "only the user turn survives")
	assert.Equal(t, model.RoleUser, turns[0].Role)
}

func TestContextCancellation(t *testing.T) {
	h := newHarness(t, Options{}, testutil.Script{Hang: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Send(ctx, "hello") }()

	require.Eventually(t, func() bool { return len(h.adapter.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, Idle, h.orch.State())
	assert.Len(t, h.stored(t), 1)
}

func TestProviderErrorFails(t *testing.T) {
	tests := []struct {
		name string
		kind model.Kind
	}{
		{name: "auth", kind: model.KindAuth},
		{name: "rate limited", kind: model.KindRateLimited},
		{name: "unreachable", kind: model.KindProviderUnreachable},
		{name: "protocol", kind: model.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{},
				testutil.ErrorScript(tt.kind, "some ", "output"),
				testutil.TextScript("recovered"),
			)

			err := h.orch.Send(context.Background(), "hello")
			assert.True(t, model.IsKind(err, tt.kind), "got %v", err)
			assert.Equal(t, Failed, h.orch.State())
			assert.True(t, model.IsKind(h.orch.Err(), tt.kind))

			turns := h.stored(t)
			require.Len(t, turns, 1, "partial output is never persisted")

			// Failed accepts a new message.
			require.NoError(t, h.orch.Send(context.Background(), "again"))
			assert.Equal(t, Idle, h.orch.State())
			assert.Nil(t, h.orch.Err())
			assert.Len(t, h.stored(t), 3)
		})
	}
}

func TestNotConfigured(t *testing.T) {
	h := newHarness(t, Options{})
	h.orch.deps.Credentials = fakeCredentials{}

	err := h.orch.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrNotConfigured)
	assert.Equal(t, Failed, h.orch.State())
	assert.Empty(t, h.adapter.Calls())

	require.NoError(t, h.orch.Select(model.Selection{ProviderID: "anthropic", ModelID: "claude"}))
	err = h.orch.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrNotConfigured)
}

func TestToolFailureIsFedBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind model.Kind
	}{
		{
			name: "timeout",
			err:  &model.Error{Kind: model.KindToolTimeout, Provider: "weather", Message: "weather__get_weather did not answer within 30s"},
			kind: model.KindToolTimeout,
		},
		{
			name: "tool error",
			err:  &model.Error{Kind: model.KindTool, Provider: "weather", Message: "upstream API down"},
			kind: model.KindTool,
		},
		{
			name: "unclassified",
			err:  errors.New("boom"),
			kind: model.KindTool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{},
				testutil.ToolCallScript("call_1", "weather__get_weather", `{"location":"Paris"}`),
				testutil.TextScript("The weather service is unavailable."),
			)
			h.tools.invoke = func(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
				return model.ToolResult{}, tt.err
			}

			require.NoError(t, h.orch.Send(context.Background(), "Weather?"))
			assert.Equal(t, Idle, h.orch.State())

			turns := h.stored(t)
			require.Len(t, turns, 4)
			res := turns[2].ToolResult
			require.NotNil(t, res)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Contains(t, turns[2].Content, tt.err.Error())

			assert.NotContains(t, h.events.states(), Failed)
			calls := h.adapter.Calls()
			require.Len(t, calls, 2, "the model gets to see the failure")
		})
	}
}

func TestInvalidArgumentsSkipTool(t *testing.T) {
	h := newHarness(t, Options{},
		testutil.ToolCallScript("call_1", "calc__calculate", `[1, 2]`),
		testutil.TextScript("sorry"),
	)

	require.NoError(t, h.orch.Send(context.Background(), "add"))

	assert.Empty(t, h.tools.invocations())
	turns := h.stored(t)
	require.Len(t, turns, 4)
	assert.Equal(t, model.KindSchemaViolation, turns[2].ToolResult.ErrorKind)
	assert.Equal(t, `[1, 2]`, turns[1].ToolCalls[0].RawArguments)
}

func TestToolLoopExceeded(t *testing.T) {
	h := newHarness(t, Options{MaxToolIterations: 2},
		testutil.ToolCallScript("c1", "calc__calculate", `{"expression":"1"}`),
		testutil.ToolCallScript("c2", "calc__calculate", `{"expression":"2"}`),
		testutil.ToolCallScript("c3", "calc__calculate", `{"expression":"3"}`),
	)

	err := h.orch.Send(context.Background(), "loop")
	assert.ErrorIs(t, err, model.ErrToolLoopExceeded)
	assert.Equal(t, Failed, h.orch.State())

	assert.Len(t, h.tools.invocations(), 2)
	turns := h.stored(t)
	assert.Len(t, turns, 5, "user plus two committed rounds")
	assert.Equal(t, "c2", turns[4].ToolResult.CallID)
}

func TestIdleWatchdog(t *testing.T) {
	h := newHarness(t, Options{StreamIdleTimeout: 50 * time.Millisecond},
		testutil.Script{Deltas: []model.Delta{model.TextDelta("thinking...")}, Hang: true},
	)

	start := time.Now()
	err := h.orch.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrProtocol)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, Failed, h.orch.State())
	assert.Len(t, h.stored(t), 1)
}

func TestStreamEndingInsideToolCall(t *testing.T) {
	h := newHarness(t, Options{}, testutil.Script{Deltas: []model.Delta{
		model.ToolCallStartDelta("c1", "calc__calculate"),
		model.ToolCallArgsDelta("c1", `{"expr`),
		model.DoneDelta(),
	}})

	err := h.orch.Send(context.Background(), "calc")
	assert.ErrorIs(t, err, model.ErrProtocol)
	assert.Empty(t, h.tools.invocations())
	assert.Len(t, h.stored(t), 1)
}

func TestStreamWithoutTerminalDelta(t *testing.T) {
	h := newHarness(t, Options{}, testutil.Script{Deltas: []model.Delta{model.TextDelta("cut")}})

	err := h.orch.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrProtocol)
	assert.Equal(t, Failed, h.orch.State())
}

func TestModelWithoutToolSupport(t *testing.T) {
	h := newHarness(t, Options{}, testutil.TextScript("plain"))
	h.orch.deps.Models = models{
		{ProviderID: "openai", ModelID: "gpt-4o"}: {ID: "gpt-4o", SupportsTools: false},
	}

	require.NoError(t, h.orch.Send(context.Background(), "hi"))
	calls := h.adapter.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Tools)
}

func TestTitleFromFirstMessage(t *testing.T) {
	h := newHarness(t, Options{}, testutil.TextScript("a"), testutil.TextScript("b"))

	require.NoError(t, h.orch.Send(context.Background(), "What is the capital of France?"))
	assert.Equal(t, "What is the capital ...", h.orch.Conversation().Title)

	require.NoError(t, h.orch.Send(context.Background(), "And Germany?"))
	assert.Equal(t, "What is the capital ...", h.orch.Conversation().Title)
	assert.Equal(t, 1, h.events.count(EventConversationChanged))
}

func TestEverySendYieldsOneUserTurn(t *testing.T) {
	scripts := []testutil.Script{
		testutil.TextScript("one"),
		testutil.ErrorScript(model.KindRateLimited),
		testutil.ToolCallScript("c", "calc__calculate", `{"expression":"1"}`),
		testutil.TextScript("three"),
		testutil.TextScript("four"),
	}
	h := newHarness(t, Options{}, scripts...)

	messages := []string{"m1", "m2", "m3", "m4"}
	for _, m := range messages {
		_ = h.orch.Send(context.Background(), m)
		state := h.orch.State()
		assert.True(t, state == Idle || state == Failed, "terminal state, got %s", state)
	}

	var users []string
	for _, turn := range h.stored(t) {
		if turn.Role == model.RoleUser {
			users = append(users, turn.Content)
		}
	}
	assert.Equal(t, messages, users)
}

func TestNewLoadsHistory(t *testing.T) {
	history := storage.NewMemoryStore()
	conv := model.NewConversation(model.Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	for _, turn := range testutil.TestTurns() {
		require.NoError(t, history.Append(context.Background(), conv.ID, turn))
	}

	adapter := testutil.NewScriptedAdapter(testutil.TextScript("sure"))
	orch, err := New(context.Background(), conv, Deps{
		Providers:   fakeProviders{"openai": adapter},
		Credentials: fakeCredentials{"openai": "k"},
		History:     history,
	}, Options{})
	require.NoError(t, err)
	assert.Len(t, orch.Turns(), 3)

	require.NoError(t, orch.Send(context.Background(), "thanks"))
	calls := adapter.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Turns, 4)
	assert.Empty(t, calls[0].Tools, "no tool source means no tools")
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(context.Background(), model.Conversation{ID: "x"}, Deps{}, Options{})
	assert.Error(t, err)
}
