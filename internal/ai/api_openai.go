package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	defaultTranscribeModel = "gpt-4o-mini-transcribe"
	defaultAudioModel      = "gpt-4o-mini-audio-preview"
	defaultMaxTokens       = 1024
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	CompletionModel string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration // per request; 0 leaves the SDK default
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// OpenAIProvider transcribes clips and produces spoken replies through the
// OpenAI API.
type OpenAIProvider struct {
	client openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = defaultTranscribeModel
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = defaultAudioModel
	}
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

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With("provider", "openai"),
	}
}

func (p *OpenAIProvider) ID() string {
	return "openai"
}

// Transcribe uploads the clip and returns the recognized text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, wav []byte, opts TranscribeOptions) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(p.cfg.TranscribeModel),
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = openai.String(opts.Prompt)
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	start := time.Now()
	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		status, msg := openAIErrorDetail(err)
		return "", &TranscriptionError{StatusCode: status, Message: msg, Err: err}
	}
	p.logger.Debug("transcribed", "model", p.cfg.TranscribeModel, "bytes", len(wav),
		"chars", len(res.Text), "elapsed", time.Since(start))
	return res.Text, nil
}

// Complete requests a reply. When audio.Format is set the reply includes
// synthesized speech in that format.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, audio AudioOptions) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.cfg.CompletionModel),
		Messages:            openAIMessages(messages),
		MaxCompletionTokens: openai.Int(int64(p.cfg.MaxTokens)),
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = openai.Float(p.cfg.Temperature)
	}
	if audio.Format != "" {
		params.Modalities = []string{"text", "audio"}
		params.Audio = openai.ChatCompletionAudioParam{
			Voice:  openai.ChatCompletionAudioParamVoice(audio.Voice),
			Format: openai.ChatCompletionAudioParamFormat(audio.Format),
		}
	}

	res, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status, msg := openAIErrorDetail(err)
		return nil, &CompletionError{Provider: p.ID(), StatusCode: status, Message: msg, Err: err}
	}
	if len(res.Choices) == 0 {
		return nil, &CompletionError{Provider: p.ID(), Message: "response has no choices"}
	}

	msg := res.Choices[0].Message
	out := &Completion{
		Text: SelectText(msg.Content, msg.Audio.Transcript),
		Usage: Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
			CachedTokens:     res.Usage.PromptTokensDetails.CachedTokens,
			AudioTokens:      res.Usage.CompletionTokensDetails.AudioTokens,
		},
	}
	if msg.Audio.Data != "" {
		data, err := base64.StdEncoding.DecodeString(msg.Audio.Data)
		if err != nil {
			return nil, &CompletionError{Provider: p.ID(), Message: "invalid audio payload", Err: err}
		}
		out.Audio = data
	}

	p.logger.Info("completion usage",
		"model", p.cfg.CompletionModel,
		"messages", len(messages),
		"prompt_tokens", out.Usage.PromptTokens,
		"cached_tokens", out.Usage.CachedTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"total_tokens", out.Usage.TotalTokens,
		"audio_tokens", out.Usage.AudioTokens,
		"audio_bytes", len(out.Audio))
	return out, nil
}

func openAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func openAIErrorDetail(err error) (int, string) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return apiErr.StatusCode, msg
	}
	return 0, err.Error()
}
