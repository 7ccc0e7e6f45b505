// Package ai talks to the remote speech-to-text and chat completion
// services. Every call is a single attempt; retries are left to the caller.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PlaceholderText is stored for replies that carry neither content nor an
// audio transcript, so history never holds an empty assistant turn.
const PlaceholderText = "[Audio response - no text transcript available]"

// TranscribeOptions tune a transcription request. Zero values are omitted.
type TranscribeOptions struct {
	Language    string
	Prompt      string
	Temperature float64
}

// AudioOptions request a spoken reply alongside the text.
type AudioOptions struct {
	Voice  string
	Format string // "wav"
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	CachedTokens     int64 `json:"cached_tokens"`
	AudioTokens      int64 `json:"audio_tokens"` // reply audio, part of CompletionTokens
}

// Completion is a parsed reply. Text is already resolved with SelectText.
// Audio is empty when the provider returned none.
type Completion struct {
	Text  string
	Audio []byte
	Usage Usage
}

// Transcriber converts a recorded WAV clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, opts TranscribeOptions) (string, error)
}

// Completer sends an ordered message list and returns the reply.
type Completer interface {
	ID() string
	Complete(ctx context.Context, messages []Message, audio AudioOptions) (*Completion, error)
}

// TranscriptionError is a non-success response from the speech-to-text
// service. StatusCode is 0 when no response was received.
type TranscriptionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode == 0 {
		return "transcription failed: " + e.Message
	}
	return fmt.Sprintf("transcription failed (%d): %s", e.StatusCode, e.Message)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// CompletionError is a non-success response from the completion service.
type CompletionError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s completion failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s completion failed (%d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// SelectText picks the text kept in history for a reply: the message
// content when present, then the audio transcript, then PlaceholderText.
func SelectText(content, transcript string) string {
	if c := strings.TrimSpace(content); c != "" {
		return content
	}
	if t := strings.TrimSpace(transcript); t != "" {
		return transcript
	}
	return PlaceholderText
}
