package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Known settings keys.
const (
	KeyEnhancedVoiceMode = "enhanced_voice_mode"
	KeyCustomPrompt      = "custom_prompt"
	KeyAnalyticsEnabled  = "analytics_enabled"
)

// SettingsChangeCallback is called after the settings file changes, with the
// keys whose values differ from the previous snapshot.
type SettingsChangeCallback func(changed []string)

// SettingsStore is a JSON key/value settings file with an in-memory cache.
type SettingsStore struct {
	path      string
	logger    *slog.Logger
	mu        sync.RWMutex
	cached    map[string]any
	callbacks []SettingsChangeCallback
}

// DefaultSettings returns the values used when a key is absent from the file.
func DefaultSettings() map[string]any {
	return map[string]any{
		KeyEnhancedVoiceMode: true,
		KeyAnalyticsEnabled:  true,
	}
}

// OpenSettings loads the settings file at path. A missing file yields defaults;
// it is created on the first Set.
func OpenSettings(path string, logger *slog.Logger) (*SettingsStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SettingsStore{
		path:   path,
		logger: logger.With("component", "settings"),
		cached: DefaultSettings(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *SettingsStore) Path() string { return s.path }

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	next := DefaultSettings()
	if len(data) > 0 {
		var fromFile map[string]any
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("parse settings %s: %w", s.path, err)
		}
		for k, v := range fromFile {
			next[k] = v
		}
	}

	s.mu.Lock()
	changed := diffKeys(s.cached, next)
	s.cached = next
	callbacks := append([]SettingsChangeCallback(nil), s.callbacks...)
	s.mu.Unlock()

	if len(changed) > 0 {
		for _, cb := range callbacks {
			cb(changed)
		}
	}
	return nil
}

// Get returns the raw value for key.
func (s *SettingsStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cached[key]
	return v, ok
}

// Bool returns key as a bool, or def when absent or mistyped.
func (s *SettingsStore) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// String returns key as a string, or def when absent or mistyped.
func (s *SettingsStore) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// Set stores value under key and persists the whole map.
// A nil value removes the key.
func (s *SettingsStore) Set(key string, value any) error {
	s.mu.Lock()
	prev, had := s.cached[key]
	if value == nil {
		delete(s.cached, key)
	} else {
		s.cached[key] = value
	}
	snapshot := make(map[string]any, len(s.cached))
	for k, v := range s.cached {
		snapshot[k] = v
	}
	callbacks := append([]SettingsChangeCallback(nil), s.callbacks...)
	s.mu.Unlock()

	if err := s.save(snapshot); err != nil {
		return err
	}
	if !had || !equalJSON(prev, value) {
		for _, cb := range callbacks {
			cb([]string{key})
		}
	}
	return nil
}

// OnChange registers a callback fired whenever settings change.
func (s *SettingsStore) OnChange(cb SettingsChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

func (s *SettingsStore) save(values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Watch reloads the file when another process edits it.
// It blocks until the context is cancelled.
func (s *SettingsStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and our own save replace the file by rename.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if err := s.load(); err != nil {
					s.logger.Warn("settings reload failed", "error", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func diffKeys(prev, next map[string]any) []string {
	var changed []string
	for k, v := range next {
		if pv, ok := prev[k]; !ok || !equalJSON(pv, v) {
			changed = append(changed, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}

func equalJSON(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ab) == string(bb)
}
