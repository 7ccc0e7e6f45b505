package voice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFixedDurationRecorder_RecordsWindow(t *testing.T) {
	mic := &fakeMic{}
	rec := NewFixedDurationRecorder(mic, Format{SampleRate: 40, FrameSamples: testFrameSamples}, time.Second, nil)
	mic.feed(frames(0.2, 12))

	var ready int
	clip, err := rec.Record(context.Background(), Hooks{OnReady: func() { ready++ }})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if clip.Samples != 40 {
		t.Errorf("expected 40 samples, got %d", clip.Samples)
	}
	if clip.Duration() != time.Second {
		t.Errorf("expected 1s clip, got %v", clip.Duration())
	}
	if ready != 1 {
		t.Errorf("expected OnReady once, got %d", ready)
	}
	if opens, closes := mic.counts(); opens != 1 || closes != 1 {
		t.Errorf("expected mic opened and released once, got opens=%d closes=%d", opens, closes)
	}
}

func TestFixedDurationRecorder_ShortStream(t *testing.T) {
	mic := &fakeMic{}
	rec := NewFixedDurationRecorder(mic, Format{SampleRate: 40, FrameSamples: testFrameSamples}, time.Second, nil)
	mic.feed(frames(0.2, 3))
	mic.hangup()

	clip, err := rec.Record(context.Background(), Hooks{})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if clip.Samples != 12 {
		t.Errorf("expected the 12 captured samples, got %d", clip.Samples)
	}
}

func TestFixedDurationRecorder_NoAudio(t *testing.T) {
	mic := &fakeMic{}
	rec := NewFixedDurationRecorder(mic, Format{SampleRate: 40, FrameSamples: testFrameSamples}, time.Second, nil)
	mic.hangup()

	_, err := rec.Record(context.Background(), Hooks{})
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestFixedDurationRecorder_OpenFailure(t *testing.T) {
	mic := &fakeMic{openErr: errBoom}
	rec := NewFixedDurationRecorder(mic, DefaultFormat, 0, nil)

	if rec.Duration() != 5*time.Second {
		t.Errorf("expected 5s default window, got %v", rec.Duration())
	}
	_, err := rec.Record(context.Background(), Hooks{})
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestFixedDurationRecorder_ContextCancel(t *testing.T) {
	mic := &fakeMic{}
	rec := NewFixedDurationRecorder(mic, Format{SampleRate: 40, FrameSamples: testFrameSamples}, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rec.Record(ctx, Hooks{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, closes := mic.counts(); closes != 1 {
		t.Errorf("expected mic released on cancel, got %d closes", closes)
	}
}
