package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures the local Ollama provider.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OllamaProvider produces text-only replies from a local model.
type OllamaProvider struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = "qwen3:4b"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OllamaProvider{
		client: api.NewClient(base, httpClient),
		model:  cfg.Model,
		logger: logger.With("provider", "ollama"),
	}, nil
}

func (p *OllamaProvider) ID() string {
	return "ollama"
}

// Ping checks that the Ollama server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Heartbeat(ctx)
}

// Complete ignores the audio options; replies are text only.
func (p *OllamaProvider) Complete(ctx context.Context, messages []Message, _ AudioOptions) (*Completion, error) {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}
	stream := false
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   &stream,
	}

	var final api.ChatResponse
	var content string
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return nil, &CompletionError{Provider: p.ID(), StatusCode: se.StatusCode, Message: se.ErrorMessage, Err: err}
		}
		return nil, &CompletionError{Provider: p.ID(), Message: err.Error(), Err: err}
	}

	out := &Completion{
		Text: SelectText(content, ""),
		Usage: Usage{
			PromptTokens:     int64(final.PromptEvalCount),
			CompletionTokens: int64(final.EvalCount),
			TotalTokens:      int64(final.PromptEvalCount + final.EvalCount),
		},
	}
	p.logger.Info("completion usage",
		"model", p.model,
		"messages", len(messages),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens)
	return out, nil
}
