package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"deepchat/config"
	"deepchat/model"
)

// ConversationStore persists conversation headers. *storage.SQLiteStore and
// *storage.MemoryStore implement it.
type ConversationStore interface {
	SaveConversation(ctx context.Context, conv model.Conversation) error
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
}

// Manager owns the open conversations and tracks which one is current.
// Conversations run independently of each other.
type Manager struct {
	deps  Deps
	store ConversationStore
	opts  Options

	mu      sync.Mutex
	open    map[string]*Orchestrator
	current string
}

// NewManager creates a manager. opts applies to every conversation it opens;
// opts.OnEvent receives the events of all of them.
func NewManager(deps Deps, store ConversationStore, opts Options) *Manager {
	return &Manager{
		deps:  deps,
		store: store,
		opts:  opts,
		open:  make(map[string]*Orchestrator),
	}
}

// New starts an empty conversation on sel and makes it current.
func (m *Manager) New(ctx context.Context, sel model.Selection) (*Orchestrator, error) {
	conv := model.NewConversation(sel)
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	o, err := m.start(ctx, conv)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = conv.ID
	m.mu.Unlock()
	return o, nil
}

// Open returns the orchestrator for id, loading it from the store if it is
// not open yet. It does not change the current conversation.
func (m *Manager) Open(ctx context.Context, id string) (*Orchestrator, error) {
	m.mu.Lock()
	o, ok := m.open[id]
	m.mu.Unlock()
	if ok {
		return o, nil
	}

	conv, err := m.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, conv)
}

// start builds the orchestrator for conv and registers it. If another
// caller opened the same conversation first, that one wins.
func (m *Manager) start(ctx context.Context, conv model.Conversation) (*Orchestrator, error) {
	opts := m.opts
	opts.OnEvent = m.observe

	o, err := New(ctx, conv, m.deps, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.open[conv.ID]; ok {
		return existing, nil
	}
	m.open[conv.ID] = o
	return o, nil
}

// observe saves header changes and forwards every event. Headers of
// conversations that are no longer open are not saved.
func (m *Manager) observe(e Event) {
	if e.Type == EventConversationChanged {
		m.mu.Lock()
		_, open := m.open[e.ConversationID]
		if open {
			if err := m.store.SaveConversation(context.Background(), e.Conversation); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[Manager] Failed to save conversation %s: %v", e.ConversationID, err)
			}
		}
		m.mu.Unlock()
	}
	if m.opts.OnEvent != nil {
		m.opts.OnEvent(e)
	}
}

// Current returns the current conversation, or nil if there is none.
func (m *Manager) Current() *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[m.current]
}

// Switch makes id the current conversation. The previous one keeps running
// if it has a request in flight.
func (m *Manager) Switch(ctx context.Context, id string) (*Orchestrator, error) {
	o, err := m.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = id
	m.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Manager] Switched to conversation %s", id)
	}
	return o, nil
}

// List returns every stored conversation, most recent first.
func (m *Manager) List(ctx context.Context) ([]model.Conversation, error) {
	return m.store.ListConversations(ctx)
}

// Delete removes a conversation and its history. A conversation with a
// request in flight cannot be deleted. Orchestrators handed out earlier for
// it reject further calls with ErrDeleted.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.open[id]; ok {
		if err := o.close(); err != nil {
			return err
		}
	}
	delete(m.open, id)
	if m.current == id {
		m.current = ""
	}

	if err := m.deps.History.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}
