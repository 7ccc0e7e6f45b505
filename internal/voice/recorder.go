package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrTornDown is the cause reported by Record when ForceTeardown interrupts it.
var ErrTornDown = errors.New("recorder torn down")

// SessionState is the transient state of the VAD recorder.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionWaitingForMic
	SessionSpeechActive
	SessionFinalizing
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionWaitingForMic:
		return "waiting-for-mic"
	case SessionSpeechActive:
		return "speech-active"
	case SessionFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Hooks are invoked on the goroutine calling Record. Any may be nil.
type Hooks struct {
	OnReady       func() // first frame of the session arrived
	OnSpeechStart func()
	OnMisfire     func() // a segment ended too short to count
}

func (h Hooks) ready() {
	if h.OnReady != nil {
		h.OnReady()
	}
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Format   Format
	Detector DetectorConfig
	// NewScorer creates the detection engine on first start.
	NewScorer func() (Scorer, error)
	// KeepAlive reports whether to pause (true) or release (false) the
	// microphone and engine after each utterance. Nil means pause.
	KeepAlive func() bool
	Logger    *slog.Logger
}

// Recorder captures one utterance per Record call using voice activity
// detection over a Microphone. Between utterances the engine is either paused
// with the device held open, or released.
type Recorder struct {
	cfg    RecorderConfig
	mic    Microphone
	logger *slog.Logger

	mu       sync.Mutex
	frames   <-chan []float32 // non-nil while the device is open
	scorer   Scorer
	detector *Detector
	paused   bool
	state    SessionState
	cancel   context.CancelCauseFunc
	done     chan struct{}
	inHook   bool
}

// NewRecorder returns a Recorder over mic.
func NewRecorder(mic Microphone, cfg RecorderConfig) *Recorder {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = DefaultFormat
	}
	if cfg.NewScorer == nil {
		cfg.NewScorer = func() (Scorer, error) { return NewEnergyScorer(), nil }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cfg: cfg, mic: mic, logger: logger.With("component", "recorder")}
}

// State returns the current session state.
func (r *Recorder) State() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	return r.State() != SessionIdle
}

// Start acquires the microphone and engine, or resumes a paused engine
// without reopening the device. It is a no-op while already listening.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx)
}

func (r *Recorder) startLocked(ctx context.Context) error {
	if r.frames != nil && !r.paused {
		return nil
	}

	if r.frames != nil && r.paused {
		if r.drainLocked() {
			r.detector.Reset()
			r.paused = false
			r.logger.Debug("resumed paused engine")
			return nil
		}
		// Device went away while paused.
		r.releaseLocked()
	}

	if r.scorer == nil {
		s, err := r.cfg.NewScorer()
		if err != nil {
			if !errors.Is(err, ErrVoiceDetectionInit) {
				err = fmt.Errorf("%w: %v", ErrVoiceDetectionInit, err)
			}
			return err
		}
		r.scorer = s
		r.detector = NewDetector(s, r.cfg.Detector)
	}

	frames, err := r.mic.Open(ctx, r.cfg.Format)
	if err != nil {
		if !errors.Is(err, ErrMicrophoneUnavailable) {
			err = fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
		}
		return err
	}
	r.frames = frames
	r.paused = false
	r.detector.Reset()
	r.logger.Debug("microphone acquired")
	return nil
}

// drainLocked discards frames queued while paused. It returns false if the
// stream has closed.
func (r *Recorder) drainLocked() bool {
	for {
		select {
		case _, ok := <-r.frames:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// Record starts (or resumes) listening and blocks until one utterance is
// finalized, ctx ends, or ForceTeardown is called. The returned clip is a
// self-contained mono 16-bit WAV.
func (r *Recorder) Record(ctx context.Context, hooks Hooks) (*Clip, error) {
	r.mu.Lock()
	if r.state != SessionIdle {
		r.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	if err := r.startLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	rctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.state = SessionWaitingForMic
	frames, det := r.frames, r.detector
	r.mu.Unlock()

	defer func() {
		cancel(nil)
		r.mu.Lock()
		// A teardown requested from a hook could not wait for us.
		if errors.Is(context.Cause(rctx), ErrTornDown) {
			r.releaseLocked()
		}
		r.cancel, r.done = nil, nil
		r.state = SessionIdle
		r.mu.Unlock()
		close(done)
	}()

	ready := false
	for {
		if rctx.Err() != nil {
			return nil, r.interrupted(rctx)
		}
		select {
		case <-rctx.Done():
			return nil, r.interrupted(rctx)

		case frame, ok := <-frames:
			if !ok {
				r.mu.Lock()
				r.releaseLocked()
				r.mu.Unlock()
				return nil, fmt.Errorf("%w: audio stream ended", ErrMicrophoneUnavailable)
			}
			if !ready {
				ready = true
				r.runHook(hooks.OnReady)
				if rctx.Err() != nil {
					return nil, r.interrupted(rctx)
				}
			}

			ev, err := det.Process(frame)
			if err != nil {
				r.mu.Lock()
				r.releaseLocked()
				r.mu.Unlock()
				return nil, err
			}

			switch ev.Kind {
			case EventSpeechStart:
				r.setState(SessionSpeechActive)
				r.runHook(hooks.OnSpeechStart)
			case EventMisfire:
				r.setState(SessionWaitingForMic)
				r.runHook(hooks.OnMisfire)
			case EventSpeechEnd:
				r.setState(SessionFinalizing)
				clip := NewClip(ev.Audio, r.cfg.Format.SampleRate)
				r.afterUtterance()
				r.logger.Debug("utterance finalized", "duration", clip.Duration())
				return clip, nil
			}
		}
	}
}

// interrupted returns why rctx ended. Anything but a teardown pauses the
// engine so the next Record can resume it.
func (r *Recorder) interrupted(rctx context.Context) error {
	cause := context.Cause(rctx)
	if !errors.Is(cause, ErrTornDown) {
		r.pause()
	}
	return cause
}

// runHook calls fn with inHook set so ForceTeardown knows not to wait on the
// Record that is calling it.
func (r *Recorder) runHook(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.inHook = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inHook = false
		r.mu.Unlock()
	}()
	fn()
}

func (r *Recorder) setState(s SessionState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// afterUtterance pauses or releases according to KeepAlive.
func (r *Recorder) afterUtterance() {
	if r.cfg.KeepAlive == nil || r.cfg.KeepAlive() {
		r.pause()
		return
	}
	r.mu.Lock()
	r.releaseLocked()
	r.mu.Unlock()
	r.logger.Debug("engine released after utterance")
}

func (r *Recorder) pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frames == nil {
		return
	}
	r.paused = true
	r.detector.Reset()
}

// releaseLocked closes the device and engine and clears every field.
func (r *Recorder) releaseLocked() {
	if r.frames != nil {
		if err := r.mic.Close(); err != nil {
			r.logger.Warn("microphone close failed", "error", err)
		}
	}
	if r.scorer != nil {
		if err := r.scorer.Close(); err != nil {
			r.logger.Warn("engine close failed", "error", err)
		}
	}
	r.frames = nil
	r.scorer = nil
	r.detector = nil
	r.paused = false
}

// ForceTeardown interrupts any Record in progress and releases the
// microphone and engine. It is safe to call repeatedly and from a Hooks
// callback; in that case the release happens as Record returns.
func (r *Recorder) ForceTeardown() {
	r.mu.Lock()
	cancel, done, inHook := r.cancel, r.done, r.inHook
	r.mu.Unlock()

	if cancel != nil {
		cancel(ErrTornDown)
		if inHook {
			return
		}
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
	r.state = SessionIdle
}
