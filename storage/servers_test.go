package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	servers := newSQLiteStore(t).Servers()

	records, err := servers.ListServers(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	puppeteer := ServerRecord{
		ID:        "puppeteer",
		Name:      "Puppeteer",
		Transport: "stdio",
		Command:   "npx",
		Args:      []string{"-y", "@modelcontextprotocol/server-puppeteer"},
		Env:       map[string]string{"HEADLESS": "1"},
		Installed: true,
	}
	remote := ServerRecord{
		ID:        "search",
		Name:      "Search",
		Transport: "sse",
		URL:       "https://tools.example.com/sse",
		Custom:    true,
	}
	require.NoError(t, servers.SaveServer(ctx, puppeteer))
	require.NoError(t, servers.SaveServer(ctx, remote))

	puppeteer.Enabled = true
	require.NoError(t, servers.SaveServer(ctx, puppeteer))

	records, err = servers.ListServers(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "puppeteer", records[0].ID, "updates keep the original position")
	assert.True(t, records[0].Installed)
	assert.True(t, records[0].Enabled)
	assert.Equal(t, puppeteer.Args, records[0].Args)
	assert.Equal(t, "1", records[0].Env["HEADLESS"])

	assert.Equal(t, "https://tools.example.com/sse", records[1].URL)
	assert.True(t, records[1].Custom)
	assert.Nil(t, records[1].Args)
}

func TestServerStoreRequiresID(t *testing.T) {
	servers := newSQLiteStore(t).Servers()
	assert.Error(t, servers.SaveServer(context.Background(), ServerRecord{Name: "x"}))
}

func TestOpenAddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	store, err := Open(path)
	require.NoError(t, err)
	has, err := store.columnExists("mcp_servers", "url")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.columnExists("mcp_servers", "nope")
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, store.Close())
}
