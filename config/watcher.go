package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is how long the watcher waits after the last write
// before reloading credentials.
const DefaultReloadDebounce = 250 * time.Millisecond

// WatchCredentials reloads store from dataDir whenever its credentials file
// is written by another process, until ctx is done. Changes are applied via
// ReplaceAll, so every changed provider fires the store's hooks.
//
// The data directory is watched rather than the file itself because editors
// replace files by rename. Reload failures are logged and the previous
// credentials stay in place.
func WatchCredentials(ctx context.Context, store *CredentialStore, dataDir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dataDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dataDir, err)
	}

	target := filepath.Clean(store.CredentialsPath(dataDir))

	go func() {
		defer watcher.Close()

		// nil until a matching event arrives
		var reload <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				reload = time.After(debounce)

			case <-reload:
				reload = nil
				creds, err := store.readFile(dataDir)
				if err != nil {
					if DebugLog != nil {
						DebugLog.Printf("[CredentialWatcher] Reload failed: %v", err)
					}
					continue
				}
				store.ReplaceAll(creds)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if DebugLog != nil {
					DebugLog.Printf("[CredentialWatcher] Watch error: %v", err)
				}
			}
		}
	}()

	return nil
}
