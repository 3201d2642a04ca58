package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deepchat/config"
	"deepchat/model"
)

// Append stores turn at the end of conversationID's history. The turn gets
// an ID and timestamp if it has none.
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, turn model.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	toolCalls, toolResult, err := encodeToolFields(turn)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO turns (id, conversation_id, role, content, tool_calls, tool_result, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, conversationID, string(turn.Role), turn.Content, toolCalls, toolResult, turn.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		turn.Timestamp.UnixNano(), conversationID,
	); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return tx.Commit()
}

// List returns the turns of conversationID in append order.
func (s *SQLiteStore) List(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, role, content, tool_calls, tool_result, created_at
	FROM turns
	WHERE conversation_id = ?
	ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var (
			turn       model.Turn
			role       string
			toolCalls  sql.NullString
			toolResult sql.NullString
			created    int64
		)
		if err := rows.Scan(&turn.ID, &role, &turn.Content, &toolCalls, &toolResult, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = model.Role(role)
		turn.Timestamp = time.Unix(0, created)

		if err := decodeToolFields(&turn, toolCalls, toolResult); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// Delete removes a conversation and all of its turns. Deleting an unknown
// conversation is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] Deleted conversation %s", conversationID)
	}
	return nil
}

// SaveConversation inserts or updates a conversation header.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv model.Conversation) error {
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

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO conversations (id, title, provider_id, model_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		provider_id = excluded.provider_id,
		model_id = excluded.model_id,
		updated_at = MAX(conversations.updated_at, excluded.updated_at)`,
		conv.ID, conv.Title, conv.ProviderID, conv.ModelID, conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// GetConversation loads one conversation header. A missing conversation
// returns ErrNotFound.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, title, provider_id, model_id, created_at, updated_at
	FROM conversations
	WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, err
}

// ListConversations returns every conversation header, most recently
// updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, title, provider_id, model_id, created_at, updated_at
	FROM conversations
	ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var (
		conv             model.Conversation
		created, updated int64
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.ProviderID, &conv.ModelID, &created, &updated); err != nil {
		return model.Conversation{}, err
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)
	return conv, nil
}

func encodeToolFields(turn model.Turn) (calls, result sql.NullString, err error) {
	if len(turn.ToolCalls) > 0 {
		data, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return calls, result, fmt.Errorf("failed to encode tool calls: %w", err)
		}
		calls = sql.NullString{String: string(data), Valid: true}
	}
	if turn.ToolResult != nil {
		data, err := json.Marshal(turn.ToolResult)
		if err != nil {
			return calls, result, fmt.Errorf("failed to encode tool result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}
	return calls, result, nil
}

func decodeToolFields(turn *model.Turn, calls, result sql.NullString) error {
	if calls.Valid && calls.String != "" {
		if err := json.Unmarshal([]byte(calls.String), &turn.ToolCalls); err != nil {
			return fmt.Errorf("turn %s: failed to decode tool calls: %w", turn.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		var tr model.ToolResult
		if err := json.Unmarshal([]byte(result.String), &tr); err != nil {
			return fmt.Errorf("turn %s: failed to decode tool result: %w", turn.ID, err)
		}
		turn.ToolResult = &tr
	}
	return nil
}
