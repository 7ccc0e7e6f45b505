// Package assistant runs one spoken question about a video through the
// whole pipeline: record, transcribe, prompt, complete, play.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/analytics"
	"github.com/neboloop/ytvoice/internal/conversation"
	"github.com/neboloop/ytvoice/internal/prompt"
	"github.com/neboloop/ytvoice/internal/subtitles"
	"github.com/neboloop/ytvoice/internal/voice"
)

var (
	// ErrBusy is returned when a query is already in flight.
	ErrBusy = errors.New("a query is already in progress")

	// ErrRecordingTimeout means no utterance was finalized within the
	// recording ceiling.
	ErrRecordingTimeout = errors.New("recording timeout")

	// ErrEmptyTranscript means the clip transcribed to nothing.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrNoAudio is returned by Replay when there is nothing to replay.
	ErrNoAudio = errors.New("no reply audio to replay")
)

// DefaultRecordingTimeout is the hard ceiling on one recording.
const DefaultRecordingTimeout = 30 * time.Second

// Default transcription hints.
const (
	DefaultTranscribePrompt      = "transcribe everything, don't miss any words"
	DefaultTranscribeTemperature = 0
)

// Recorder captures one utterance. Both the VAD recorder and the
// fixed-duration fallback satisfy it.
type Recorder interface {
	Record(ctx context.Context, hooks voice.Hooks) (*voice.Clip, error)
	ForceTeardown()
}

// Config tunes an Assistant.
type Config struct {
	RecordingTimeout time.Duration
	// KeepFailedQuestions leaves the user turn in history when the
	// completion fails. By default it is rolled back.
	KeepFailedQuestions bool
	ContextMaxWords     int
	Transcribe          ai.TranscribeOptions
	Audio               ai.AudioOptions
	// CustomPrompt returns the user's instruction override, read per query.
	CustomPrompt func() string
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		RecordingTimeout: DefaultRecordingTimeout,
		ContextMaxWords:  prompt.DefaultExcerptWords,
		Transcribe: ai.TranscribeOptions{
			Prompt:      DefaultTranscribePrompt,
			Temperature: DefaultTranscribeTemperature,
		},
		Audio: ai.AudioOptions{Voice: "alloy", Format: "wav"},
	}
}

// Deps are the collaborators an Assistant drives. Fallback, Player, Audio,
// Subtitles and Tracker are optional.
type Deps struct {
	Recorder    Recorder
	Fallback    Recorder
	Transcriber ai.Transcriber
	Completer   ai.Completer
	Player      voice.Player
	Store       *conversation.Store
	Audio       *conversation.AudioCache
	Subtitles   subtitles.Provider
	Tracker     *analytics.Tracker
	Logger      *slog.Logger
}

// Query describes the video the question is about.
type Query struct {
	VideoID  string
	Title    string
	Position float64 // seconds
	// Track is used as-is when set; otherwise it is fetched from Subtitles.
	Track *subtitles.Track
}

// Timings are per-step durations for one query. Steps never reached are zero.
type Timings struct {
	Recording     time.Duration
	Transcription time.Duration
	Completion    time.Duration
	Playback      time.Duration
	Total         time.Duration
}

// Result is the outcome of Ask. It is returned even on failure, carrying
// whatever was produced before the failing step.
type Result struct {
	ID           uuid.UUID
	Question     string
	Answer       string
	Audio        []byte
	AudioRef     string
	Usage        ai.Usage
	Timings      Timings
	UsedFallback bool
	// Marker reports whether a position note was stored with the question.
	Marker bool
}

// Assistant owns the pipeline for one user. At most one query runs at a time.
type Assistant struct {
	cfg  Config
	deps Deps

	logger *slog.Logger
	busy   atomic.Bool
	state  atomic.Int32
}

// New returns an Assistant. Recorder, Transcriber, Completer and Store are
// required.
func New(cfg Config, deps Deps) (*Assistant, error) {
	switch {
	case deps.Recorder == nil:
		return nil, errors.New("assistant: recorder is required")
	case deps.Transcriber == nil:
		return nil, errors.New("assistant: transcriber is required")
	case deps.Completer == nil:
		return nil, errors.New("assistant: completer is required")
	case deps.Store == nil:
		return nil, errors.New("assistant: conversation store is required")
	}
	if cfg.RecordingTimeout <= 0 {
		cfg.RecordingTimeout = DefaultRecordingTimeout
	}
	if cfg.ContextMaxWords <= 0 {
		cfg.ContextMaxWords = prompt.DefaultExcerptWords
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Audio != nil {
		audio := deps.Audio
		deps.Store.OnDrop(func(refs []string) { audio.Delete(refs...) })
	}
	return &Assistant{cfg: cfg, deps: deps, logger: logger.With("component", "assistant")}, nil
}

// State returns the current pipeline state.
func (a *Assistant) State() State { return State(a.state.Load()) }

// Busy reports whether a query or replay is in flight.
func (a *Assistant) Busy() bool { return a.busy.Load() }

func (a *Assistant) setState(s State) {
	if prev := State(a.state.Swap(int32(s))); prev != s {
		a.logger.Debug("state", "from", prev, "to", s)
	}
}

// Ask records a question about q, answers it and plays the reply. A second
// call while one is running fails immediately with ErrBusy. Every failure is
// also reported once through status with PhaseError.
func (a *Assistant) Ask(ctx context.Context, q Query, status StatusFunc) (*Result, error) {
	if status == nil {
		status = func(string, Phase) {}
	}
	if !a.busy.CompareAndSwap(false, true) {
		status(msgErrorPrefix+msgBusy, PhaseError)
		return nil, ErrBusy
	}
	defer a.busy.Store(false)

	res := &Result{ID: uuid.New()}
	start := time.Now()
	err := a.ask(ctx, q, status, res)
	res.Timings.Total = time.Since(start)
	a.setState(StateIdle)

	a.deps.Tracker.Track(ctx, analytics.VoiceQuery(err == nil))
	if err != nil {
		a.deps.Tracker.Track(ctx, analytics.Error(errorKind(err)))
		status(msgErrorPrefix+userMessage(err), PhaseError)
		a.logger.Error("query failed", "id", res.ID, "video", q.VideoID, "error", err)
	}
	a.logTimings(res, err)
	return res, err
}

func (a *Assistant) ask(ctx context.Context, q Query, status StatusFunc, res *Result) error {
	if err := a.deps.Store.SwitchToVideo(q.VideoID); err != nil {
		return err
	}

	status(msgStarting, PhaseProcessing)
	a.setState(StateRecording)
	t := time.Now()
	clip, usedFallback, err := a.record(ctx, status)
	res.Timings.Recording = time.Since(t)
	res.UsedFallback = usedFallback
	if err != nil {
		return err
	}
	status(msgRecorded, PhaseProcessing)

	status(msgProcessing, PhaseTranscribing)
	a.setState(StateTranscribing)
	t = time.Now()
	question, err := a.deps.Transcriber.Transcribe(ctx, clip.WAV, a.cfg.Transcribe)
	res.Timings.Transcription = time.Since(t)
	if err != nil {
		return err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyTranscript
	}
	res.Question = question
	a.logger.Info("question transcribed", "id", res.ID, "text", question)

	status(msgGenerating, PhaseCompleting)
	a.setState(StateCompleting)
	t = time.Now()
	err = a.complete(ctx, q, res)
	res.Timings.Completion = time.Since(t)
	if err != nil {
		return err
	}

	if len(res.Audio) > 0 && a.deps.Player != nil {
		status(msgPlaying, PhasePlaying)
		a.setState(StatePlaying)
		t = time.Now()
		err = a.deps.Player.Play(ctx, res.Audio)
		res.Timings.Playback = time.Since(t)
		if err != nil {
			return err
		}
	}

	status(msgCompleted, PhaseSuccess)
	return nil
}

// record runs the VAD recorder and, when it cannot work at all, the
// fixed-duration fallback once.
func (a *Assistant) record(ctx context.Context, status StatusFunc) (*voice.Clip, bool, error) {
	hooks := voice.Hooks{
		OnReady:       func() { status(msgRecording, PhaseRecording) },
		OnSpeechStart: func() { a.logger.Debug("speech started") },
		OnMisfire:     func() { status(msgMisfire, PhaseInfo) },
	}
	clip, err := a.recordWithin(ctx, a.deps.Recorder, hooks)
	if err == nil || a.deps.Fallback == nil || !voice.IsRecorderFailure(err) {
		return clip, false, err
	}

	a.logger.Warn("voice detection unavailable, using fixed-duration recording", "error", err)
	a.deps.Recorder.ForceTeardown()
	status(msgSwitching, PhaseInfo)
	status(msgStartingFix, PhaseRecording)
	clip, err = a.recordWithin(ctx, a.deps.Fallback, voice.Hooks{})
	return clip, true, err
}

// recordWithin enforces the recording ceiling. On breach the recorder is
// torn down so the microphone is released.
func (a *Assistant) recordWithin(ctx context.Context, rec Recorder, hooks voice.Hooks) (*voice.Clip, error) {
	rctx, cancel := context.WithTimeoutCause(ctx, a.cfg.RecordingTimeout, ErrRecordingTimeout)
	defer cancel()

	clip, err := rec.Record(rctx, hooks)
	if err != nil && errors.Is(context.Cause(rctx), ErrRecordingTimeout) {
		rec.ForceTeardown()
		return nil, ErrRecordingTimeout
	}
	if err == nil && clip == nil {
		return nil, fmt.Errorf("%w: recorder returned no clip", voice.ErrInvalidAudio)
	}
	return clip, err
}

// complete builds the prompt from the stored history, commits the question,
// calls the completer and commits the reply.
func (a *Assistant) complete(ctx context.Context, q Query, res *Result) error {
	track := q.Track
	if track == nil && a.deps.Subtitles != nil {
		var err error
		track, err = a.deps.Subtitles.Fetch(ctx, q.VideoID)
		if err != nil {
			if !errors.Is(err, subtitles.ErrNotFound) {
				a.logger.Warn("subtitles unavailable", "video", q.VideoID, "error", err)
			}
			track = nil
		}
	}

	custom := ""
	if a.cfg.CustomPrompt != nil {
		custom = a.cfg.CustomPrompt()
	}
	video := prompt.NewVideoContext(q.VideoID, q.Title, track, q.Position, a.cfg.ContextMaxWords)
	messages := prompt.NewBuilder(custom).Build(video, a.deps.Store.History(q.VideoID), res.Question)

	appended, err := a.deps.Store.AppendUserTurn(res.Question, q.Position, prompt.PositionNote(video))
	if err != nil {
		return err
	}
	res.Marker = appended.Marker
	if appended.Marker {
		a.logger.Debug("position note stored", "video", q.VideoID, "position", conversation.Floor(q.Position))
	}

	reply, err := a.deps.Completer.Complete(ctx, messages, a.cfg.Audio)
	if err != nil {
		if a.cfg.KeepFailedQuestions {
			a.logger.Debug("keeping unanswered question", "video", q.VideoID)
		} else {
			n := a.deps.Store.Discard(appended)
			a.logger.Debug("rolled back unanswered question", "video", q.VideoID, "turns", n)
		}
		return err
	}

	res.Answer = reply.Text
	res.Audio = reply.Audio
	res.Usage = reply.Usage
	if len(reply.Audio) > 0 && a.deps.Audio != nil {
		res.AudioRef = a.deps.Audio.Put(reply.Audio)
	}
	switch err := a.deps.Store.AppendAssistantTurn(appended, reply.Text, res.AudioRef); {
	case errors.Is(err, conversation.ErrQuestionGone):
		// Cleared mid-query: deliver the answer without storing it.
		if res.AudioRef != "" {
			a.deps.Audio.Delete(res.AudioRef)
			res.AudioRef = ""
		}
	case err != nil:
		return err
	}
	a.logger.Info("answer received",
		"id", res.ID,
		"provider", a.deps.Completer.ID(),
		"text", reply.Text,
		"audio_bytes", len(reply.Audio),
	)
	return nil
}

// Replay plays the most recent reply audio for the active video again.
func (a *Assistant) Replay(ctx context.Context) error {
	if a.deps.Player == nil || a.deps.Audio == nil {
		return ErrNoAudio
	}
	if !a.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer a.busy.Store(false)

	history := a.deps.Store.History(a.deps.Store.ActiveVideo())
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != conversation.RoleAssistant || turn.AudioRef == "" {
			continue
		}
		audio, ok := a.deps.Audio.Get(turn.AudioRef)
		if !ok {
			break
		}
		a.setState(StatePlaying)
		defer a.setState(StateIdle)
		return a.deps.Player.Play(ctx, audio)
	}
	return ErrNoAudio
}

// Reset forgets the conversation for videoID, or for the active video when
// videoID is empty. It fails with ErrBusy while a query or replay runs.
func (a *Assistant) Reset(videoID string) error {
	if !a.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer a.busy.Store(false)
	a.deps.Store.Reset(videoID)
	return nil
}

// Summary lists the tracked conversations, least recently used first.
func (a *Assistant) Summary() []conversation.VideoSummary { return a.deps.Store.Summary() }

// Close releases both recorders, forgets every conversation and drops the
// cached reply audio.
func (a *Assistant) Close() error {
	a.deps.Recorder.ForceTeardown()
	if a.deps.Fallback != nil {
		a.deps.Fallback.ForceTeardown()
	}
	a.deps.Store.ClearAll()
	if a.deps.Audio != nil {
		return a.deps.Audio.Close()
	}
	return nil
}

func (a *Assistant) logTimings(res *Result, err error) {
	ms := func(d time.Duration) int64 { return d.Milliseconds() }
	a.logger.Info("query timings",
		"id", res.ID,
		"ok", err == nil,
		"fallback", res.UsedFallback,
		"recording_ms", ms(res.Timings.Recording),
		"transcription_ms", ms(res.Timings.Transcription),
		"completion_ms", ms(res.Timings.Completion),
		"playback_ms", ms(res.Timings.Playback),
		"total_ms", ms(res.Timings.Total),
		"prompt_tokens", res.Usage.PromptTokens,
		"cached_tokens", res.Usage.CachedTokens,
	)
}

// userMessage is the short text shown for err.
func userMessage(err error) string {
	var (
		terr *ai.TranscriptionError
		cerr *ai.CompletionError
		perr *voice.PlaybackError
	)
	switch {
	case errors.Is(err, ErrRecordingTimeout):
		return msgTimeout
	case errors.Is(err, ErrEmptyTranscript):
		return msgNoSpeech
	case errors.Is(err, voice.ErrMicrophoneUnavailable):
		return "Microphone is not available"
	case errors.Is(err, voice.ErrVoiceDetectionInit), errors.Is(err, voice.ErrVoiceDetection):
		return "Voice detection failed"
	case errors.As(err, &terr):
		return "Transcription failed: " + terr.Message
	case errors.As(err, &cerr):
		return "Response generation failed: " + cerr.Message
	case errors.As(err, &perr):
		return "Could not play the response"
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return err.Error()
	}
}

// errorKind is the analytics label for err.
func errorKind(err error) string {
	var (
		terr *ai.TranscriptionError
		cerr *ai.CompletionError
		perr *voice.PlaybackError
	)
	switch {
	case errors.Is(err, ErrRecordingTimeout):
		return "recording_timeout"
	case errors.Is(err, ErrEmptyTranscript):
		return "empty_transcript"
	case voice.IsRecorderFailure(err):
		return "recorder"
	case errors.As(err, &terr):
		return "transcription"
	case errors.As(err, &cerr):
		return "completion"
	case errors.As(err, &perr):
		return "playback"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unknown"
	}
}
