//go:build !windows

package voice

import (
	"context"
	"errors"
	"testing"
)

func TestCommandPlayer_RejectsInvalidAudio(t *testing.T) {
	p := NewCommandPlayer([]string{"true"}, nil)

	err := p.Play(context.Background(), []byte("not audio"))
	var perr *PlaybackError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PlaybackError, got %v", err)
	}
	if perr.Op != "decode" {
		t.Errorf("expected decode op, got %q", perr.Op)
	}
	if !errors.Is(err, ErrInvalidAudio) {
		t.Error("expected error to wrap ErrInvalidAudio")
	}
}

func TestCommandPlayer_PlaysThroughCommand(t *testing.T) {
	// The player receives a non-empty file in place of {file}.
	p := NewCommandPlayer([]string{"sh", "-c", `test -s "$0"`, "{file}"}, nil)

	if err := p.Play(context.Background(), EncodeWAV(make([]float32, 160), 16000)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
}

func TestCommandPlayer_CommandFailure(t *testing.T) {
	p := NewCommandPlayer([]string{"sh", "-c", "echo no device >&2; exit 3"}, nil)

	err := p.Play(context.Background(), EncodeWAV(make([]float32, 160), 16000))
	var perr *PlaybackError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PlaybackError, got %v", err)
	}
	if perr.Op != "play" {
		t.Errorf("expected play op, got %q", perr.Op)
	}
}

func TestCommandPlayer_EmptyClipIsNoop(t *testing.T) {
	p := NewCommandPlayer([]string{"false"}, nil)
	if err := p.Play(context.Background(), EncodeWAV(nil, 16000)); err != nil {
		t.Fatalf("expected empty clip to be skipped, got %v", err)
	}
}

func TestPlayerCommand_AppendsFile(t *testing.T) {
	argv, err := playerCommand([]string{"mpv", "--no-video"}, "/tmp/x.wav")
	if err != nil {
		t.Fatal(err)
	}
	if len(argv) != 3 || argv[2] != "/tmp/x.wav" {
		t.Errorf("expected file appended, got %v", argv)
	}
}

func TestCommandMicrophone_FramesProcessOutput(t *testing.T) {
	// 4096 bytes of silence = 2048 samples = 4 frames of 512.
	mic := NewCommandMicrophone([]string{"sh", "-c", "head -c 4096 /dev/zero"}, nil)

	ch, err := mic.Open(context.Background(), DefaultFormat)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	n := 0
	for frame := range ch {
		if len(frame) != 512 {
			t.Errorf("expected 512-sample frame, got %d", len(frame))
		}
		n++
	}
	if n != 4 {
		t.Errorf("expected 4 frames, got %d", n)
	}
	if err := mic.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := mic.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCommandMicrophone_MissingBinary(t *testing.T) {
	mic := NewCommandMicrophone([]string{"/nonexistent/recorder"}, nil)

	_, err := mic.Open(context.Background(), DefaultFormat)
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestCaptureCommand_RateSubstitution(t *testing.T) {
	argv, err := captureCommand([]string{"rec", "-r", "{rate}"}, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if argv[2] != "16000" {
		t.Errorf("expected rate substituted, got %v", argv)
	}
}
