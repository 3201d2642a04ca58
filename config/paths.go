package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetDefaultDataDir returns where deepchat keeps its files when nothing else
// is configured: %LOCALAPPDATA%\deepchat on Windows, ~/.local/share/deepchat
// elsewhere.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "deepchat")
		}
		return filepath.Join(GetHomeDir(), "AppData", "Local", "deepchat")
	}
	return filepath.Join(GetHomeDir(), ".local", "share", "deepchat")
}

// GetHomeDir returns the user's home directory, or the filesystem root if
// it cannot be determined.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// ExpandPath resolves a leading ~ and $VARS, then cleans the result.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		path = GetHomeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// ConfigFilePath returns <dataDir>/config.toml.
func ConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// HistoryDBPath returns the sqlite database holding conversations and the
// tool server registry.
func HistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "deepchat.db")
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir if needed and makes it
// private to the user. It holds API keys and conversation history.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dataDir, 0700)
	case err != nil:
		return err
	case info.Mode().Perm() != 0700:
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
