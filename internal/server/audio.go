package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neboloop/ytvoice/internal/voice"
)

// socketFrameQueue is the frame channel depth, about 2s at 32ms frames.
const socketFrameQueue = 64

var errSessionClosed = errors.New("voice session closed")

// socketMicrophone turns binary PCM frames from the browser (Int16LE mono at
// the session sample rate) into a voice.Microphone. The browser is told to
// start and stop capturing as the device is opened and closed.
type socketMicrophone struct {
	notify func(open bool)

	mu     sync.Mutex
	frames chan []float32
	framer *voice.Framer
	closed bool
}

func newSocketMicrophone(notify func(open bool)) *socketMicrophone {
	return &socketMicrophone{notify: notify}
}

func (m *socketMicrophone) Open(_ context.Context, f voice.Format) (<-chan []float32, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", voice.ErrMicrophoneUnavailable, errSessionClosed)
	case m.frames != nil:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: already open", voice.ErrMicrophoneUnavailable)
	}
	frames := make(chan []float32, socketFrameQueue)
	m.frames = frames
	m.framer = voice.NewFramer(f.FrameSamples)
	m.mu.Unlock()

	m.notify(true)
	return frames, nil
}

// feed pushes raw PCM into the open device. Audio arriving while the device
// is closed, or faster than it is consumed, is dropped.
func (m *socketMicrophone) feed(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames == nil {
		return
	}
	for _, frame := range m.framer.Write(raw) {
		select {
		case m.frames <- frame:
		default:
		}
	}
}

func (m *socketMicrophone) Close() error {
	if m.release() {
		m.notify(false)
	}
	return nil
}

// shutdown closes the device for good; later Opens fail.
func (m *socketMicrophone) shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.release()
}

func (m *socketMicrophone) release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames == nil {
		return false
	}
	close(m.frames)
	m.frames = nil
	m.framer = nil
	return true
}

// socketPlayer sends reply audio to the browser as one binary frame and
// blocks until the page reports playback_done.
type socketPlayer struct {
	send func(audio []byte) error
	done chan string
	stop <-chan struct{}
}

func newSocketPlayer(send func([]byte) error, stop <-chan struct{}) *socketPlayer {
	return &socketPlayer{send: send, done: make(chan string, 1), stop: stop}
}

func (p *socketPlayer) Play(ctx context.Context, audio []byte) error {
	if _, err := voice.ParseWAV(audio); err != nil {
		return &voice.PlaybackError{Op: "decode", Err: err}
	}
	// Drop an acknowledgement left over from an abandoned playback.
	select {
	case <-p.done:
	default:
	}
	if err := p.send(audio); err != nil {
		return &voice.PlaybackError{Op: "play", Err: err}
	}

	select {
	case msg := <-p.done:
		if msg != "" {
			return &voice.PlaybackError{Op: "play", Err: errors.New(msg)}
		}
		return nil
	case <-p.stop:
		return &voice.PlaybackError{Op: "play", Err: errSessionClosed}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finished records the browser's acknowledgement; errText is empty on success.
func (p *socketPlayer) finished(errText string) {
	select {
	case p.done <- errText:
	default:
	}
}
