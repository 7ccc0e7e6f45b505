package ai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AnthropicProvider produces text-only replies with Claude. The leading
// system message is sent as a cached system block.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
	logger *slog.Logger
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With("provider", "anthropic"),
	}
}

func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// Complete ignores the audio options; replies are text only.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, _ AudioOptions) (*Completion, error) {
	system, turns := anthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: int64(p.cfg.MaxTokens),
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	res, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &CompletionError{Provider: p.ID(), StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
		}
		return nil, &CompletionError{Provider: p.ID(), Message: err.Error(), Err: err}
	}

	var text strings.Builder
	for _, block := range res.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := &Completion{
		Text: SelectText(text.String(), ""),
		Usage: Usage{
			PromptTokens:     res.Usage.InputTokens + res.Usage.CacheReadInputTokens + res.Usage.CacheCreationInputTokens,
			CompletionTokens: res.Usage.OutputTokens,
			CachedTokens:     res.Usage.CacheReadInputTokens,
		},
	}
	out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens

	p.logger.Info("completion usage",
		"model", p.cfg.Model,
		"messages", len(messages),
		"prompt_tokens", out.Usage.PromptTokens,
		"cached_tokens", out.Usage.CachedTokens,
		"completion_tokens", out.Usage.CompletionTokens)
	return out, nil
}

// anthropicMessages splits off the leading system message and folds later
// system notes into the user turn that follows them. Consecutive messages
// with the same role are merged into one message with several text blocks,
// since the API requires roles to alternate.
func anthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		system = messages[0].Content
		messages = messages[1:]
	}

	var (
		out    []anthropic.MessageParam
		role   Role
		blocks []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	for _, m := range messages {
		r := m.Role
		if r == RoleSystem {
			r = RoleUser
		}
		if r != role {
			flush()
			role = r
		}
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	flush()
	return system, out
}
