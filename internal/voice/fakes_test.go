package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// probScorer treats the first sample of each frame as the speech probability.
type probScorer struct {
	mu     sync.Mutex
	resets int
	closes int
	err    error
}

func (s *probScorer) Score(frame []float32) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return frame[0], nil
}

func (s *probScorer) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *probScorer) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

const testFrameSamples = 4

func frameOf(p float32) []float32 {
	f := make([]float32, testFrameSamples)
	for i := range f {
		f[i] = p
	}
	return f
}

func frames(p float32, n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = frameOf(p)
	}
	return out
}

func utterance(speech, silence int) [][]float32 {
	return append(frames(0.9, speech), frames(0.1, silence)...)
}

// fakeMic hands out one buffered channel per open.
type fakeMic struct {
	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
	ch      chan []float32
	closed  bool
}

func (m *fakeMic) channel() chan []float32 {
	if m.ch == nil {
		m.ch = make(chan []float32, 512)
		m.closed = false
	}
	return m.ch
}

func (m *fakeMic) Open(ctx context.Context, f Format) (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opens++
	return m.channel(), nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if m.ch != nil && !m.closed {
		close(m.ch)
	}
	m.ch = nil
	return nil
}

// hangup ends the stream as if the device disappeared.
func (m *fakeMic) hangup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := m.channel()
	if !m.closed {
		close(ch)
		m.closed = true
	}
}

func (m *fakeMic) feed(fs [][]float32) {
	m.mu.Lock()
	ch := m.channel()
	m.mu.Unlock()
	for _, f := range fs {
		ch <- f
	}
}

func (m *fakeMic) counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

type recordResult struct {
	clip *Clip
	err  error
}

func recordAsync(ctx context.Context, r *Recorder, hooks Hooks) <-chan recordResult {
	out := make(chan recordResult, 1)
	go func() {
		clip, err := r.Record(ctx, hooks)
		out <- recordResult{clip, err}
	}()
	return out
}

func waitRecording(t *testing.T, r *Recorder) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.Recording() {
		if time.Now().After(deadline) {
			t.Fatal("recorder never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitResult(t *testing.T, ch <-chan recordResult) recordResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("Record did not return")
		return recordResult{}
	}
}

var errBoom = errors.New("boom")
