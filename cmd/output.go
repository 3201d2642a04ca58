package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"deepchat/mcp"
	"deepchat/model"
	"deepchat/storage"
)

const timeFormat = "2006-01-02 15:04"

func printConversations(w io.Writer, convs []model.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %s  %-28s %s\n", c.ID, c.UpdatedAt.Local().Format(timeFormat), c.Selection(), c.Title)
	}
}

func printTools(w io.Writer, tools []model.ToolDescriptor) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "No tools available. Enable a server with: deepchat servers enable <id>")
		return
	}
	for _, t := range tools {
		fmt.Fprintf(w, "%-32s %s\n", t.Name, firstLine(t.Description))
	}
}

func printModels(w io.Writer, models []model.ModelDescriptor) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models.")
		return
	}
	for _, m := range models {
		var flags []string
		if m.SupportsTools {
			flags = append(flags, "tools")
		}
		if m.SupportsStreaming {
			flags = append(flags, "streaming")
		}
		name := m.DisplayName
		if name == m.ID {
			name = ""
		}
		fmt.Fprintf(w, "%-40s %-16s %s\n", m.Key(), strings.Join(flags, ","), name)
	}
}

func printTurns(w io.Writer, turns []model.Turn) {
	for _, t := range turns {
		stamp := t.Timestamp.Local().Format(time.TimeOnly)
		switch {
		case t.IsToolRequest():
			names := make([]string, 0, len(t.ToolCalls))
			for _, c := range t.ToolCalls {
				names = append(names, c.Name)
			}
			if t.Content != "" {
				fmt.Fprintf(w, "[%s] assistant: %s\n", stamp, t.Content)
			}
			fmt.Fprintf(w, "[%s] assistant called %s\n", stamp, strings.Join(names, ", "))
		case t.Role == model.RoleTool && t.ToolResult != nil:
			status := "ok"
			if t.ToolResult.IsError {
				status = string(t.ToolResult.ErrorKind)
			}
			fmt.Fprintf(w, "[%s] tool %s (%s): %s\n", stamp, t.ToolResult.ToolName, status, firstLine(t.Content))
		default:
			fmt.Fprintf(w, "[%s] %s: %s\n", stamp, t.Role, t.Content)
		}
	}
}

func printSearchResults(w io.Writer, results []storage.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s  %s (%s)\n    %s\n", r.ConversationID, r.Title, r.Role, r.Snippet)
	}
}

func printServers(w io.Writer, servers []mcp.Server) {
	for _, s := range servers {
		state := "available"
		switch {
		case s.Installed && s.Enabled:
			state = "enabled"
		case s.Installed:
			state = "installed"
		}
		kind := string(s.Transport)
		if s.Custom {
			kind += ", custom"
		}
		fmt.Fprintf(w, "%-20s %-10s %-22s %s\n", s.ID, state, kind, s.Description)
	}
}

// maskKey shows enough of an API key to recognize it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
