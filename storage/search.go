package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepchat/model"
)

// snippetRadius is how many runes of context a search snippet keeps on each
// side of the match.
const snippetRadius = 40

const defaultSearchLimit = 50

// SearchResult is one turn whose content matched a history search.
type SearchResult struct {
	ConversationID string
	Title          string
	TurnID         string
	Role           model.Role
	Snippet        string
	Timestamp      time.Time
}

// Search finds user and assistant turns containing query, case-insensitively.
// Results are grouped by conversation, most recently updated first, and in
// turn order within a conversation. limit <= 0 uses a default of 50.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// instr avoids having to escape LIKE wildcards in the query.
	rows, err := s.db.QueryContext(ctx, `
	SELECT t.conversation_id, COALESCE(c.title, ''), t.id, t.role, t.content, t.created_at
	FROM turns t
	LEFT JOIN conversations c ON c.id = t.conversation_id
	WHERE t.role != ? AND instr(lower(t.content), lower(?)) > 0
	ORDER BY COALESCE(c.updated_at, 0) DESC, t.conversation_id, t.seq
	LIMIT ?`, string(model.RoleTool), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r       SearchResult
			role    string
			content string
			created int64
		)
		if err := rows.Scan(&r.ConversationID, &r.Title, &r.TurnID, &role, &content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Role = model.Role(role)
		r.Timestamp = time.Unix(0, created)
		r.Snippet = Snippet(content, query)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Snippet cuts content down to the first case-insensitive match of query
// with some surrounding context, marking elided text with "...". Newlines
// are flattened so a snippet prints on one line.
func Snippet(content, query string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	q := []rune(strings.ToLower(query))

	at := -1
	// ToLower can change rune counts for some scripts.
	if len(lower) == len(runes) {
		at = indexRunes(lower, q)
	}
	if at < 0 {
		at = 0
	}

	start := at - snippetRadius
	end := at + len(q) + snippetRadius
	prefix, suffix := "...", "..."
	if start <= 0 {
		start, prefix = 0, ""
	}
	if end >= len(runes) {
		end, suffix = len(runes), ""
	}
	return prefix + string(runes[start:end]) + suffix
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
