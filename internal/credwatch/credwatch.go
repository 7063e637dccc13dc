// Package credwatch keeps an OAuth-style credential file in sync with the
// environment handed to every agent subprocess launch, so a long-running
// daemon picks up a rotated token without needing a restart.
package credwatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the current value read from a credentials file, refreshed
// whenever the file changes on disk.
type Watcher struct {
	path    string
	envKey  string
	mu      sync.Mutex
	token   string
	watcher *fsnotify.Watcher
}

// New reads path once and starts watching its parent directory for
// create/write events (atomic-write patterns, write-to-tmp-then-rename,
// don't fire events on the file itself). envKey is the environment
// variable name the token is exposed under via Env(). Returns an error
// only if fsnotify itself cannot be initialized or the parent directory
// cannot be watched; a missing or unreadable credentials file just starts
// the watcher with an empty token.
func New(ctx context.Context, path, envKey string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	cw := &Watcher{
		path:    path,
		envKey:  envKey,
		token:   readToken(path),
		watcher: w,
	}
	go cw.watchLoop(ctx)
	return cw, nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("credwatch: watcher error", "path", w.path, "err", err)
		}
	}
}

func (w *Watcher) reload() {
	token := readToken(w.path)
	if token == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if token == w.token {
		return
	}
	w.token = token
	slog.Info("credwatch: credentials file changed, token refreshed", "path", w.path)
}

// Token returns the most recently read credential value.
func (w *Watcher) Token() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// Env returns a single-entry environment map suitable for
// worker.Deps.AgentEnv, carrying the current token under envKey.
func (w *Watcher) Env() map[string]string {
	token := w.Token()
	if token == "" {
		return nil
	}
	return map[string]string{w.envKey: token}
}

func readToken(path string) string {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-configured, not user input.
	if err != nil {
		return ""
	}
	var creds struct {
		ClaudeAiOauth struct {
			AccessToken string `json:"accessToken"`
		} `json:"claudeAiOauth"`
	}
	if json.Unmarshal(data, &creds) == nil && creds.ClaudeAiOauth.AccessToken != "" {
		return creds.ClaudeAiOauth.AccessToken
	}
	// Fall back to a bare-token file (e.g. a mounted API key secret with no
	// JSON wrapper), matching ANTHROPIC_API_KEY's plain-string shape.
	return strings.TrimSpace(string(data))
}
