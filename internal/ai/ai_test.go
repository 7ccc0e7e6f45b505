package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectText(t *testing.T) {
	assert.Equal(t, "Hello", SelectText("", "Hello"))
	assert.Equal(t, "from content", SelectText("from content", "from audio"))
	assert.Equal(t, "from audio", SelectText("  ", "from audio"))
	assert.Equal(t, "from content", SelectText("from content", "  "))
	assert.Equal(t, PlaceholderText, SelectText("", ""))
	assert.Equal(t, PlaceholderText, SelectText(" \n", ""))
}

func newOpenAITestProvider(t *testing.T, h http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1/",
		Temperature: 1.0,
	})
}

func TestOpenAI_Transcribe(t *testing.T) {
	var model, prompt, language string
	var upload []byte
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		model = r.FormValue("model")
		prompt = r.FormValue("prompt")
		language = r.FormValue("language")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		upload, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"what is this video about"}`)
	})

	text, err := p.Transcribe(context.Background(), []byte("RIFFfake"), TranscribeOptions{
		Language: "en",
		Prompt:   "transcribe everything, don't miss any words",
	})
	require.NoError(t, err)
	assert.Equal(t, "what is this video about", text)
	assert.Equal(t, "gpt-4o-mini-transcribe", model)
	assert.Equal(t, "transcribe everything, don't miss any words", prompt)
	assert.Equal(t, "en", language)
	assert.Equal(t, "RIFFfake", string(upload))
}

func TestOpenAI_TranscribeError(t *testing.T) {
	var calls int
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	})

	_, err := p.Transcribe(context.Background(), []byte("x"), TranscribeOptions{})
	var terr *TranscriptionError
	require.True(t, errors.As(err, &terr), "expected *TranscriptionError, got %v", err)
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
	assert.Equal(t, "upstream exploded", terr.Message)
	assert.Equal(t, 1, calls, "transcription must not be retried")
}

type chatRequest struct {
	Model      string   `json:"model"`
	Modalities []string `json:"modalities"`
	Audio      struct {
		Voice  string `json:"voice"`
		Format string `json:"format"`
	} `json:"audio"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	Temperature         float64 `json:"temperature"`
	Messages            []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatResponse(content, data, transcript string) string {
	msg := map[string]any{"role": "assistant", "content": content}
	if data != "" || transcript != "" {
		msg["audio"] = map[string]any{"id": "audio_1", "data": data, "expires_at": 1, "transcript": transcript}
	}
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini-audio-preview",
		"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": msg}},
		"usage": map[string]any{
			"prompt_tokens":             120,
			"completion_tokens":         30,
			"total_tokens":              150,
			"prompt_tokens_details":     map[string]any{"cached_tokens": 64, "audio_tokens": 0},
			"completion_tokens_details": map[string]any{"audio_tokens": 25, "text_tokens": 5},
		},
	})
	return string(body)
}

func TestOpenAI_CompleteWithAudio(t *testing.T) {
	wav := []byte("RIFF....WAVEfmt ")
	var req chatRequest
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatResponse("", base64.StdEncoding.EncodeToString(wav), "Hello"))
	})

	msgs := []Message{
		{Role: RoleSystem, Content: "static"},
		{Role: RoleSystem, Content: "note"},
		{Role: RoleUser, Content: "question"},
	}
	res, err := p.Complete(context.Background(), msgs, AudioOptions{Voice: "alloy", Format: "wav"})
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150, CachedTokens: 64, AudioTokens: 25}, res.Usage)

	assert.Equal(t, "gpt-4o-mini-audio-preview", req.Model)
	assert.Equal(t, []string{"text", "audio"}, req.Modalities)
	assert.Equal(t, "alloy", req.Audio.Voice)
	assert.Equal(t, "wav", req.Audio.Format)
	assert.Equal(t, 1024, req.MaxCompletionTokens)
	assert.Equal(t, 1.0, req.Temperature)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[1].Role)
	assert.Equal(t, "note", req.Messages[1].Content)
	assert.Equal(t, "user", req.Messages[2].Role)
}

func TestOpenAI_CompletePrefersContentOverTranscript(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatResponse("Written answer", base64.StdEncoding.EncodeToString([]byte("RIFF")), "Spoken answer"))
	})

	res, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, AudioOptions{Format: "wav", Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, "Written answer", res.Text)
	assert.Equal(t, []byte("RIFF"), res.Audio)
}

func TestOpenAI_CompleteWithoutTextOrAudio(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatResponse("", "", ""))
	})

	res, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, AudioOptions{Format: "wav", Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, PlaceholderText, res.Text)
	assert.Empty(t, res.Audio)
}

func TestOpenAI_CompleteError(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, AudioOptions{})
	var cerr *CompletionError
	require.True(t, errors.As(err, &cerr), "expected *CompletionError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, cerr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", cerr.Message)
	assert.Equal(t, "openai", cerr.Provider)
}

func TestAnthropic_Complete(t *testing.T) {
	var body struct {
		Model  string `json:"model"`
		System []struct {
			Text         string `json:"text"`
			CacheControl struct {
				Type string `json:"type"`
			} `json:"cache_control"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"It is about Go."}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":6,"cache_read_input_tokens":400,"cache_creation_input_tokens":0}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "claude"})
	res, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "static"},
		{Role: RoleSystem, Content: "marker"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "dangling"},
		{Role: RoleUser, Content: "q2"},
	}, AudioOptions{Voice: "alloy", Format: "wav"})
	require.NoError(t, err)

	assert.Equal(t, "It is about Go.", res.Text)
	assert.Empty(t, res.Audio)
	assert.Equal(t, int64(420), res.Usage.PromptTokens)
	assert.Equal(t, int64(400), res.Usage.CachedTokens)
	assert.Equal(t, int64(426), res.Usage.TotalTokens)

	require.Len(t, body.System, 1)
	assert.Equal(t, "static", body.System[0].Text)
	assert.Equal(t, "ephemeral", body.System[0].CacheControl.Type)

	require.Len(t, body.Messages, 3)
	assert.Equal(t, "user", body.Messages[0].Role)
	require.Len(t, body.Messages[0].Content, 2)
	assert.Equal(t, "marker", body.Messages[0].Content[0].Text)
	assert.Equal(t, "q1", body.Messages[0].Content[1].Text)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Len(t, body.Messages[2].Content, 2)
}

func TestAnthropic_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "claude"})
	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, AudioOptions{})
	var cerr *CompletionError
	require.True(t, errors.As(err, &cerr), "expected *CompletionError, got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, cerr.StatusCode)
}

func TestOllama_Complete(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"qwen3:4b","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"Local answer."},"done":true,"prompt_eval_count":50,"eval_count":4}`+"\n")
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	res, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "static"},
		{Role: RoleUser, Content: "q"},
	}, AudioOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Local answer.", res.Text)
	assert.Equal(t, int64(54), res.Usage.TotalTokens)
	assert.Equal(t, "qwen3:4b", req.Model)
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
}

func TestOllama_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"nope\" not found"}`+"\n")
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "nope"})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, AudioOptions{})
	var cerr *CompletionError
	require.True(t, errors.As(err, &cerr), "expected *CompletionError, got %v", err)
	assert.Contains(t, cerr.Message, "not found")
}
