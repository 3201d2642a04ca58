package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ServerRecord is the persisted state of one MCP server registry entry.
type ServerRecord struct {
	ID          string
	Name        string
	Description string
	Repo        string
	Transport   string
	Command     string
	Args        []string
	Env         map[string]string
	URL         string
	Installed   bool
	Enabled     bool
	Custom      bool
	UpdatedAt   time.Time
}

// ServerStore is the mcp_servers table.
type ServerStore struct {
	db *sql.DB
}

// Servers returns the registry table of the store.
func (s *SQLiteStore) Servers() *ServerStore {
	return &ServerStore{db: s.db}
}

// SaveServer inserts rec or updates the existing record with its ID.
func (ss *ServerStore) SaveServer(ctx context.Context, rec ServerRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("server ID is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	env, err := json.Marshal(rec.Env)
	if err != nil {
		return fmt.Errorf("failed to encode env: %w", err)
	}

	query := `
	INSERT INTO mcp_servers (id, name, description, repo, transport, command, args, env, url, installed, enabled, custom, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		repo = excluded.repo,
		transport = excluded.transport,
		command = excluded.command,
		args = excluded.args,
		env = excluded.env,
		url = excluded.url,
		installed = excluded.installed,
		enabled = excluded.enabled,
		custom = excluded.custom,
		updated_at = excluded.updated_at
	`
	_, err = ss.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Description,
		rec.Repo,
		rec.Transport,
		rec.Command,
		string(args),
		string(env),
		rec.URL,
		rec.Installed,
		rec.Enabled,
		rec.Custom,
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save server %s: %w", rec.ID, err)
	}
	return nil
}

// ListServers returns every saved record in the order they were first saved.
func (ss *ServerStore) ListServers(ctx context.Context) ([]ServerRecord, error) {
	query := `
	SELECT id, name, description, repo, transport, command, args, env, url, installed, enabled, custom, updated_at
	FROM mcp_servers
	ORDER BY rowid ASC
	`

	rows, err := ss.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var records []ServerRecord
	for rows.Next() {
		var (
			rec       ServerRecord
			args, env sql.NullString
			updated   int64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.Description,
			&rec.Repo,
			&rec.Transport,
			&rec.Command,
			&args,
			&env,
			&rec.URL,
			&rec.Installed,
			&rec.Enabled,
			&rec.Custom,
			&updated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &rec.Args); err != nil {
				return nil, fmt.Errorf("server %s: bad args: %w", rec.ID, err)
			}
		}
		if env.Valid && env.String != "" {
			if err := json.Unmarshal([]byte(env.String), &rec.Env); err != nil {
				return nil, fmt.Errorf("server %s: bad env: %w", rec.ID, err)
			}
		}
		rec.UpdatedAt = time.Unix(0, updated)
		records = append(records, rec)
	}

	return records, rows.Err()
}
