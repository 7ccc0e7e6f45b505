package ai

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/neboloop/ytvoice/internal/config"
)

// ErrMissingAPIKey is returned when a provider needs a key and none is set in
// the config, the environment or the keychain.
var ErrMissingAPIKey = errors.New("missing API key")

// Clients bundles the transcriber and completer chosen by the config.
type Clients struct {
	Transcriber Transcriber
	Completer   Completer
	// Audio is the reply audio request; zero for text-only providers.
	Audio AudioOptions
}

// FromConfig builds the clients for cfg.Provider. Transcription always uses
// OpenAI, so its key is required whichever completion provider is selected.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Clients, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	openaiKey := cfg.ResolveAPIKey("openai")
	if openaiKey == "" {
		return nil, fmt.Errorf("%w for openai (set OPENAI_API_KEY or run `ytvoice auth set-key openai`)", ErrMissingAPIKey)
	}
	oa := NewOpenAIProvider(OpenAIConfig{
		APIKey:          openaiKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		CompletionModel: cfg.OpenAI.CompletionModel,
		MaxTokens:       cfg.OpenAI.MaxTokens,
		Temperature:     cfg.OpenAI.Temperature,
		Timeout:         cfg.Network.RequestTimeout,
		Logger:          logger,
	})
	out := &Clients{Transcriber: oa}

	switch cfg.Provider {
	case "", "openai":
		out.Completer = oa
		out.Audio = AudioOptions{Voice: cfg.OpenAI.Voice, Format: cfg.OpenAI.AudioFormat}
	case "anthropic":
		key := cfg.ResolveAPIKey("anthropic")
		if key == "" {
			return nil, fmt.Errorf("%w for anthropic", ErrMissingAPIKey)
		}
		out.Completer = NewAnthropicProvider(AnthropicConfig{
			APIKey:    key,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Timeout:   cfg.Network.RequestTimeout,
			Logger:    logger,
		})
	case "ollama":
		p, err := NewOllamaProvider(OllamaConfig{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Network.RequestTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		out.Completer = p
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return out, nil
}
