package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deepchat/model"
)

// MemoryStore keeps history in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	turns         map[string][]model.Turn
	conversations map[string]model.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:         make(map[string][]model.Turn),
		conversations: make(map[string]model.Conversation),
	}
}

func (m *MemoryStore) Append(ctx context.Context, conversationID string, turn model.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns[conversationID] = append(m.turns[conversationID], cloneTurn(turn))
	if conv, ok := m.conversations[conversationID]; ok {
		conv.UpdatedAt = turn.Timestamp
		m.conversations[conversationID] = conv
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, conversationID string) ([]model.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.turns[conversationID]
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]model.Turn, len(stored))
	for i, t := range stored {
		out[i] = cloneTurn(t)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.turns, conversationID)
	delete(m.conversations, conversationID)
	return nil
}

func (m *MemoryStore) SaveConversation(ctx context.Context, conv model.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.conversations[conv.ID]; ok && old.UpdatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = old.UpdatedAt
	}
	m.conversations[conv.ID] = conv
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

func (m *MemoryStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convs := make([]model.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		convs = append(convs, c)
	}
	sortConversations(convs)
	return convs, nil
}

// Search matches the same turns SQLiteStore.Search would.
func (m *MemoryStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	convs, _ := m.ListConversations(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Conversations with turns but no header sort last.
	ids := make([]string, 0, len(m.turns))
	seen := make(map[string]bool)
	for _, c := range convs {
		ids = append(ids, c.ID)
		seen[c.ID] = true
	}
	var orphans []string
	for id := range m.turns {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	ids = append(ids, orphans...)

	needle := strings.ToLower(query)
	results := []SearchResult{}
	for _, id := range ids {
		for _, t := range m.turns[id] {
			if t.Role == model.RoleTool || !strings.Contains(strings.ToLower(t.Content), needle) {
				continue
			}
			results = append(results, SearchResult{
				ConversationID: id,
				Title:          m.conversations[id].Title,
				TurnID:         t.ID,
				Role:           t.Role,
				Snippet:        Snippet(t.Content, query),
				Timestamp:      t.Timestamp,
			})
			if len(results) == limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func (m *MemoryStore) Export(ctx context.Context, id string, w io.Writer) error {
	conv, err := m.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	turns, _ := m.List(ctx, id)
	return WriteTranscript(w, conv, turns)
}

func sortConversations(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
}

// cloneTurn copies the slices and pointers of t so stored turns cannot be
// changed through a caller's copy.
func cloneTurn(t model.Turn) model.Turn {
	if t.ToolCalls != nil {
		calls := make([]model.ToolCall, len(t.ToolCalls))
		copy(calls, t.ToolCalls)
		t.ToolCalls = calls
	}
	if t.ToolResult != nil {
		r := *t.ToolResult
		t.ToolResult = &r
	}
	return t
}
