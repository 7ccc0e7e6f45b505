package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FixedDurationRecorder records a fixed window from a Microphone with no
// voice detection. It is the fallback when the VAD recorder cannot run.
type FixedDurationRecorder struct {
	mic      Microphone
	format   Format
	duration time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	open bool
}

// NewFixedDurationRecorder returns a recorder capturing d of audio per call.
func NewFixedDurationRecorder(mic Microphone, f Format, d time.Duration, logger *slog.Logger) *FixedDurationRecorder {
	if f.SampleRate == 0 {
		f = DefaultFormat
	}
	if d <= 0 {
		d = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FixedDurationRecorder{mic: mic, format: f, duration: d, logger: logger.With("component", "fixed-recorder")}
}

// Duration returns the recording window.
func (f *FixedDurationRecorder) Duration() time.Duration { return f.duration }

// Record opens the microphone, captures the window and releases the device.
// OnSpeechStart and OnMisfire are never called.
func (f *FixedDurationRecorder) Record(ctx context.Context, hooks Hooks) (*Clip, error) {
	f.mu.Lock()
	if f.open {
		f.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	frames, err := f.mic.Open(ctx, f.format)
	if err != nil {
		f.mu.Unlock()
		if !errors.Is(err, ErrMicrophoneUnavailable) {
			err = fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
		}
		return nil, err
	}
	f.open = true
	f.mu.Unlock()
	defer f.release()

	want := int(f.duration.Seconds() * float64(f.format.SampleRate))
	samples := make([]float32, 0, want)
	ready := false
	for len(samples) < want {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if len(samples) == 0 {
					return nil, fmt.Errorf("%w: audio stream ended", ErrMicrophoneUnavailable)
				}
				f.logger.Warn("audio stream ended early", "samples", len(samples))
				return NewClip(samples, f.format.SampleRate), nil
			}
			if !ready {
				ready = true
				hooks.ready()
			}
			samples = append(samples, frame...)
		}
	}
	return NewClip(samples[:want], f.format.SampleRate), nil
}

func (f *FixedDurationRecorder) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return
	}
	f.open = false
	if err := f.mic.Close(); err != nil {
		f.logger.Warn("microphone close failed", "error", err)
	}
}

// ForceTeardown releases the microphone if a recording left it open.
func (f *FixedDurationRecorder) ForceTeardown() {
	f.release()
}
