package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSettings_MissingFileUsesDefaults(t *testing.T) {
	s, err := OpenSettings(filepath.Join(t.TempDir(), "settings.json"), nil)
	require.NoError(t, err)

	assert.True(t, s.Bool(KeyEnhancedVoiceMode, false))
	assert.True(t, s.Bool(KeyAnalyticsEnabled, false))
	assert.Equal(t, "", s.String(KeyCustomPrompt, ""))
}

func TestSettings_SetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := OpenSettings(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyCustomPrompt, "Answer like a pirate."))
	require.NoError(t, s.Set(KeyEnhancedVoiceMode, false))

	reopened, err := OpenSettings(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Answer like a pirate.", reopened.String(KeyCustomPrompt, ""))
	assert.False(t, reopened.Bool(KeyEnhancedVoiceMode, true))
}

func TestSettings_SetNilRemovesKey(t *testing.T) {
	s, err := OpenSettings(filepath.Join(t.TempDir(), "settings.json"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyCustomPrompt, "x"))
	require.NoError(t, s.Set(KeyCustomPrompt, nil))
	_, ok := s.Get(KeyCustomPrompt)
	assert.False(t, ok)
}

func TestSettings_MistypedValueFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"enhanced_voice_mode":"yes"}`), 0600))

	s, err := OpenSettings(path, nil)
	require.NoError(t, err)
	assert.False(t, s.Bool(KeyEnhancedVoiceMode, false))
}

func TestSettings_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

	_, err := OpenSettings(path, nil)
	assert.Error(t, err)
}

func TestSettings_OnChangeFiresForChangedKey(t *testing.T) {
	s, err := OpenSettings(filepath.Join(t.TempDir(), "settings.json"), nil)
	require.NoError(t, err)

	var got []string
	s.OnChange(func(changed []string) { got = append(got, changed...) })

	require.NoError(t, s.Set(KeyAnalyticsEnabled, false))
	require.NoError(t, s.Set(KeyAnalyticsEnabled, false))
	assert.Equal(t, []string{KeyAnalyticsEnabled}, got)
}

func TestSettings_WatchPicksUpExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := OpenSettings(path, nil)
	require.NoError(t, err)

	changed := make(chan []string, 4)
	s.OnChange(func(keys []string) { changed <- keys })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"custom_prompt":"be brief"}`), 0600))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification after external edit")
	}
	assert.Equal(t, "be brief", s.String(KeyCustomPrompt, ""))

	cancel()
	<-done
}
