package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("YTVOICE_DATA_DIR", t.TempDir())
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 20, cfg.Conversation.MaxTurns)
	assert.Equal(t, 10, cfg.Conversation.MaxVideos)
	assert.Equal(t, 30*time.Second, cfg.Voice.RecordingTimeout)
	assert.Equal(t, 60*time.Second, cfg.Network.RequestTimeout)
	assert.Equal(t, 28, cfg.Prompt.ContextMaxWords)
}

func TestLoadFrom_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
provider: anthropic
conversation:
  max_turns: 6
  keep_failed_questions: true
voice:
  engine: energy
  recording_timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 6, cfg.Conversation.MaxTurns)
	assert.True(t, cfg.Conversation.KeepFailedQuestions)
	assert.Equal(t, "energy", cfg.Voice.Engine)
	assert.Equal(t, 10*time.Second, cfg.Voice.RecordingTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Conversation.MaxVideos)
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\n"), 0644))
	t.Setenv("YTVOICE_PROVIDER", "ollama")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoadFrom_ExpandsTildeDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: ~/ytv-test\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "ytv-test"), cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider = "gemini" }, true},
		{"unknown engine", func(c *Config) { c.Voice.Engine = "webrtc" }, true},
		{"inverted thresholds", func(c *Config) { c.Voice.NegativeThreshold = 0.9 }, true},
		{"too few turns", func(c *Config) { c.Conversation.MaxTurns = 2 }, true},
		{"minimum turns", func(c *Config) { c.Conversation.MaxTurns = 3 }, false},
		{"no videos", func(c *Config) { c.Conversation.MaxVideos = 0 }, true},
		{"zero frame size", func(c *Config) { c.Voice.FrameSamples = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSave_OmitsAPIKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.OpenAI.APIKey = "sk-secret"
	cfg.Provider = "ollama"
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "config.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	reloaded, err := LoadFrom(filepath.Join(cfg.DataDir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", reloaded.Provider)
}

func TestResolveAPIKey_PrefersConfig(t *testing.T) {
	t.Setenv("YTVOICE_KEYRING_DISABLED", "1")
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "sk-config"
	assert.Equal(t, "sk-config", cfg.ResolveAPIKey("openai"))
	assert.Equal(t, "", cfg.ResolveAPIKey("anthropic"))
}
