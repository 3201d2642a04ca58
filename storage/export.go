package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"deepchat/model"
)

// Transcript is the exported form of a conversation.
type Transcript struct {
	model.Conversation
	ExportedAt time.Time    `json:"exported_at"`
	Turns      []model.Turn `json:"turns"`
}

// WriteTranscript writes conv and its turns to w as indented JSON.
func WriteTranscript(w io.Writer, conv model.Conversation, turns []model.Turn) error {
	if turns == nil {
		turns = []model.Turn{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Transcript{Conversation: conv, ExportedAt: time.Now(), Turns: turns}); err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return nil
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	name = replacer.Replace(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")
	name = strings.TrimRight(name, ".")
	if name == "" {
		return "conversation"
	}
	runes := []rune(name)
	if len(runes) > 50 {
		name = string(runes[:50])
	}
	return name
}

// ExportFileName suggests a file in dir for exporting conv.
func ExportFileName(dir string, conv model.Conversation) string {
	stamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", SanitizeFilename(conv.Title), stamp))
}
