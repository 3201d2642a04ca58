package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/model"
	"deepchat/provider/testutil"
	"deepchat/storage"
)

func newManager(t *testing.T, adapter *testutil.ScriptedAdapter) (*Manager, *storage.MemoryStore, *recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	events := &recorder{}
	deps := Deps{
		Providers:   fakeProviders{"openai": adapter},
		Credentials: fakeCredentials{"openai": "sk"},
		History:     store,
	}
	return NewManager(deps, store, Options{OnEvent: events.record}), store, events
}

var gpt4o = model.Selection{ProviderID: "openai", ModelID: "gpt-4o"}

func TestManagerNewAndList(t *testing.T) {
	adapter := testutil.NewScriptedAdapter(testutil.TextScript("hi"))
	m, store, events := newManager(t, adapter)
	ctx := context.Background()

	assert.Nil(t, m.Current())

	o, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	assert.Same(t, o, m.Current())
	assert.Equal(t, model.DefaultTitle, o.Conversation().Title)

	require.NoError(t, o.Send(ctx, "Plan a trip to Lisbon in May"))

	saved, err := store.GetConversation(ctx, o.Conversation().ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan a trip to Lisbo...", saved.Title, "title change is persisted")

	convs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, o.Conversation().ID, convs[0].ID)

	for _, e := range events.events {
		assert.Equal(t, o.Conversation().ID, e.ConversationID)
	}
}

func TestManagerSwitchAndOpen(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	m, _, _ := newManager(t, adapter)
	ctx := context.Background()

	first, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	second, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	assert.Same(t, second, m.Current())

	got, err := m.Switch(ctx, first.Conversation().ID)
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Same(t, first, m.Current())

	again, err := m.Open(ctx, first.Conversation().ID)
	require.NoError(t, err)
	assert.Same(t, first, again, "open conversations are reused")

	_, err = m.Switch(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Same(t, first, m.Current())
}

func TestManagerOpenFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv := model.NewConversation(gpt4o)
	require.NoError(t, store.SaveConversation(ctx, conv))
	require.NoError(t, store.Append(ctx, conv.ID, model.NewUserTurn("earlier")))

	adapter := testutil.NewScriptedAdapter()
	m := NewManager(Deps{
		Providers:   fakeProviders{"openai": adapter},
		Credentials: fakeCredentials{},
		History:     store,
	}, store, Options{})

	o, err := m.Open(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, o.Turns(), 1)
	assert.Nil(t, m.Current(), "Open does not switch")
}

func TestManagerDelete(t *testing.T) {
	release := make(chan struct{})
	slow := testutil.TextScript("done")
	slow.Before = release

	adapter := testutil.NewScriptedAdapter(slow)
	m, store, _ := newManager(t, adapter)
	ctx := context.Background()

	busy, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	idle, err := m.New(ctx, gpt4o)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- busy.Send(ctx, "long question") }()
	require.Eventually(t, func() bool { return len(adapter.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	err = m.Delete(ctx, busy.Conversation().ID)
	assert.ErrorIs(t, err, model.ErrBusy)

	// Other conversations are unaffected by the one in flight.
	require.NoError(t, m.Delete(ctx, idle.Conversation().ID))
	assert.Nil(t, m.Current())
	_, err = store.GetConversation(ctx, idle.Conversation().ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, m.Delete(ctx, busy.Conversation().ID))
	turns, err := store.List(ctx, busy.Conversation().ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	convs, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestManagerDeleteClosesOrchestrator(t *testing.T) {
	adapter := testutil.NewScriptedAdapter(testutil.TextScript("hi"))
	m, store, _ := newManager(t, adapter)
	ctx := context.Background()

	o, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	id := o.Conversation().ID
	require.NoError(t, m.Delete(ctx, id))

	assert.ErrorIs(t, o.Send(ctx, "hello after delete"), ErrDeleted)
	assert.ErrorIs(t, o.Select(model.Selection{ProviderID: "openai", ModelID: "o3-mini"}), ErrDeleted)
	assert.Empty(t, adapter.Calls())

	convs, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs, "the deleted conversation does not come back")
	turns, err := store.List(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestManagerSelectPersists(t *testing.T) {
	m, store, _ := newManager(t, testutil.NewScriptedAdapter())
	ctx := context.Background()

	o, err := m.New(ctx, gpt4o)
	require.NoError(t, err)
	require.NoError(t, o.Select(model.Selection{ProviderID: "openai", ModelID: "o3-mini"}))

	saved, err := store.GetConversation(ctx, o.Conversation().ID)
	require.NoError(t, err)
	assert.Equal(t, "o3-mini", saved.ModelID)

	assert.Error(t, o.Select(model.Selection{}))
}
