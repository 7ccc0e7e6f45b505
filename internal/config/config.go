package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/neboloop/ytvoice/internal/defaults"
	"github.com/neboloop/ytvoice/internal/keyring"
)

// Config holds the ytvoice configuration loaded from <data_dir>/config.yaml
// with environment overrides applied on top.
type Config struct {
	DataDir  string `yaml:"data_dir" env:"YTVOICE_DATA_DIR"`
	Provider string `yaml:"provider" env:"YTVOICE_PROVIDER"` // "openai", "anthropic", "ollama"

	OpenAI       OpenAIConfig       `yaml:"openai"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Voice        VoiceConfig        `yaml:"voice"`
	Conversation ConversationConfig `yaml:"conversation"`
	Prompt       PromptConfig       `yaml:"prompt"`
	Network      NetworkConfig      `yaml:"network"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// OpenAIConfig configures transcription and the audio-capable completion model.
type OpenAIConfig struct {
	APIKey          string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL         string  `yaml:"base_url" env:"OPENAI_BASE_URL"`
	TranscribeModel string  `yaml:"transcribe_model" env:"YTVOICE_TRANSCRIBE_MODEL"`
	CompletionModel string  `yaml:"completion_model" env:"YTVOICE_COMPLETION_MODEL"`
	Voice           string  `yaml:"voice" env:"YTVOICE_VOICE"`
	AudioFormat     string  `yaml:"audio_format"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	Language        string  `yaml:"language" env:"YTVOICE_LANGUAGE"`
}

// AnthropicConfig configures the text-only Anthropic completion provider.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// OllamaConfig configures the local text-only Ollama provider.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" env:"OLLAMA_HOST"`
	Model   string `yaml:"model"`
}

// VoiceConfig holds recorder and detector parameters.
type VoiceConfig struct {
	Engine             string        `yaml:"engine" env:"YTVOICE_VAD_ENGINE"` // "auto", "silero", "energy"
	SampleRate         int           `yaml:"sample_rate"`
	FrameSamples       int           `yaml:"frame_samples"`
	PositiveThreshold  float64       `yaml:"positive_threshold"`
	NegativeThreshold  float64       `yaml:"negative_threshold"`
	MinSpeechFrames    int           `yaml:"min_speech_frames"`
	PreSpeechPadFrames int           `yaml:"pre_speech_pad_frames"`
	RedemptionFrames   int           `yaml:"redemption_frames"`
	RecordingTimeout   time.Duration `yaml:"recording_timeout"`
	FallbackDuration   time.Duration `yaml:"fallback_duration"`
	InputCommand       []string      `yaml:"input_command"`  // overrides the platform capture command
	PlayerCommand      []string      `yaml:"player_command"` // overrides the platform player
}

// ConversationConfig bounds the in-memory history.
type ConversationConfig struct {
	MaxTurns            int           `yaml:"max_turns"`
	MaxVideos           int           `yaml:"max_videos"`
	KeepFailedQuestions bool          `yaml:"keep_failed_questions"`
	AudioTTL            time.Duration `yaml:"audio_ttl"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	ContextMaxWords int `yaml:"context_max_words"`
}

// NetworkConfig holds client-side limits for remote calls.
type NetworkConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"YTVOICE_REQUEST_TIMEOUT"`
}

// ServerConfig configures `ytvoice serve`.
type ServerConfig struct {
	Addr           string   `yaml:"addr" env:"YTVOICE_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"YTVOICE_LOG_LEVEL"`
	Format string `yaml:"format" env:"YTVOICE_LOG_FORMAT"` // "text" or "json"
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		Provider: "openai",
		OpenAI: OpenAIConfig{
			TranscribeModel: "gpt-4o-mini-transcribe",
			CompletionModel: "gpt-4o-mini-audio-preview",
			Voice:           "alloy",
			AudioFormat:     "wav",
			MaxTokens:       1024,
			Temperature:     1.0,
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 1024,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen3:4b",
		},
		Voice: VoiceConfig{
			Engine:             "auto",
			SampleRate:         16000,
			FrameSamples:       512,
			PositiveThreshold:  0.5,
			NegativeThreshold:  0.35,
			MinSpeechFrames:    16,
			PreSpeechPadFrames: 16,
			RedemptionFrames:   40,
			RecordingTimeout:   30 * time.Second,
			FallbackDuration:   5 * time.Second,
		},
		Conversation: ConversationConfig{
			MaxTurns:  20,
			MaxVideos: 10,
			AudioTTL:  30 * time.Minute,
		},
		Prompt: PromptConfig{
			ContextMaxWords: 28,
		},
		Network: NetworkConfig{
			RequestTimeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:27460",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDataDir returns the platform data directory, falling back to ~/.ytvoice.
func DefaultDataDir() string {
	dir, err := defaults.DataDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".ytvoice")
	}
	return dir
}

// Load reads config.yaml from the default data directory.
// A missing file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(DefaultDataDir(), "config.yaml"))
}

// LoadFrom loads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	// Expand ~ in DataDir (config file may have a tilde path)
	if strings.HasPrefix(cfg.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		cfg.DataDir = filepath.Join(home, cfg.DataDir[2:])
	}
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to <data_dir>/config.yaml. API keys are never written.
func (c *Config) Save() error {
	out := *c
	out.OpenAI.APIKey = ""
	out.Anthropic.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.DataDir, "config.yaml"), data, 0644)
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Voice.Engine {
	case "auto", "silero", "energy":
	default:
		return fmt.Errorf("unknown voice.engine %q", c.Voice.Engine)
	}
	if c.Voice.NegativeThreshold > c.Voice.PositiveThreshold {
		return fmt.Errorf("voice.negative_threshold (%.2f) must not exceed voice.positive_threshold (%.2f)",
			c.Voice.NegativeThreshold, c.Voice.PositiveThreshold)
	}
	if c.Voice.SampleRate <= 0 || c.Voice.FrameSamples <= 0 {
		return fmt.Errorf("voice.sample_rate and voice.frame_samples must be positive")
	}
	// A round is up to three turns (marker, question, answer); fewer slots
	// would force evicting the round that was just written.
	if c.Conversation.MaxTurns < 3 {
		return fmt.Errorf("conversation.max_turns must be at least 3, got %d", c.Conversation.MaxTurns)
	}
	if c.Conversation.MaxVideos < 1 {
		return fmt.Errorf("conversation.max_videos must be at least 1, got %d", c.Conversation.MaxVideos)
	}
	return nil
}

// DBPath returns the SQLite path for the subtitle cache and event log.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "ytvoice.db")
}

// SettingsPath returns the path of the user settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// SubtitlesDir returns the directory scanned for manually provided subtitles.
func (c *Config) SubtitlesDir() string {
	return filepath.Join(c.DataDir, "subtitles")
}

// ResolveAPIKey returns the configured key for provider, consulting the OS
// keychain when neither the config file nor the environment set one.
func (c *Config) ResolveAPIKey(provider string) string {
	var key string
	switch provider {
	case "openai":
		key = c.OpenAI.APIKey
	case "anthropic":
		key = c.Anthropic.APIKey
	}
	if key != "" {
		return key
	}
	if k, err := keyring.GetAPIKey(provider); err == nil {
		return k
	}
	return ""
}
