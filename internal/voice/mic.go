package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// Format is the capture format requested from a Microphone.
type Format struct {
	SampleRate   int
	FrameSamples int
}

// DefaultFormat is 16kHz mono in 512-sample frames.
var DefaultFormat = Format{SampleRate: 16000, FrameSamples: 512}

// Microphone is an exclusive capture device delivering fixed-size frames of
// mono float samples. Sources drop frames when the consumer is not reading.
// The frame channel is closed when the device stops.
type Microphone interface {
	Open(ctx context.Context, f Format) (<-chan []float32, error)
	Close() error
}

// frameQueue is the per-open channel depth, about 2s of audio at 32ms frames.
const frameQueue = 64

// Framer reframes Int16LE byte chunks into fixed-size float frames.
type Framer struct {
	size    int
	carry   []byte
	pending []float32
}

// NewFramer returns a Framer emitting frames of frameSamples samples.
func NewFramer(frameSamples int) *Framer {
	return &Framer{size: frameSamples}
}

// Write consumes raw PCM bytes and returns any frames completed by them.
func (f *Framer) Write(raw []byte) [][]float32 {
	if len(f.carry) > 0 {
		raw = append(f.carry, raw...)
		f.carry = nil
	}
	if len(raw)%2 == 1 {
		f.carry = []byte{raw[len(raw)-1]}
		raw = raw[:len(raw)-1]
	}
	f.pending = append(f.pending, int16ToFloat(raw)...)

	var frames [][]float32
	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[:f.size])
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return frames
}

// Reset drops partially assembled samples.
func (f *Framer) Reset() {
	f.carry = nil
	f.pending = nil
}

// CommandMicrophone captures raw s16le mono PCM from an external recorder
// process (sox, arecord or ffmpeg) reading its stdout.
type CommandMicrophone struct {
	// Command overrides the platform default. "{rate}" is replaced with the
	// sample rate. The process must write raw s16le mono PCM to stdout.
	Command []string
	Logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandMicrophone returns a microphone using command, or the platform
// default when command is empty.
func NewCommandMicrophone(command []string, logger *slog.Logger) *CommandMicrophone {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandMicrophone{Command: command, Logger: logger.With("component", "mic")}
}

// Open starts the capture process.
func (m *CommandMicrophone) Open(ctx context.Context, f Format) (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return nil, fmt.Errorf("%w: already open", ErrMicrophoneUnavailable)
	}

	argv, err := captureCommand(m.Command, f.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %v", ErrMicrophoneUnavailable, argv[0], err)
	}
	m.Logger.Debug("capture started", "command", strings.Join(argv, " "))

	frames := make(chan []float32, frameQueue)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(frames)
		pump(stdout, NewFramer(f.FrameSamples), frames)
		if err := cmd.Wait(); err != nil && procCtx.Err() == nil {
			m.Logger.Warn("capture process exited", "error", err)
		}
	}()

	m.cmd, m.cancel, m.done = cmd, cancel, done
	return frames, nil
}

// Close stops the capture process and waits for the reader to finish.
func (m *CommandMicrophone) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cmd, m.cancel, m.done = nil, nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// pump reads r until EOF, pushing frames without blocking the reader.
func pump(r io.Reader, framer *Framer, out chan<- []float32) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, frame := range framer.Write(buf[:n]) {
				select {
				case out <- frame:
				default:
					// consumer paused; drop
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// CaptureCommand returns the recorder command line used for rate, or an
// error naming what to install.
func CaptureCommand(override []string, rate int) ([]string, error) {
	return captureCommand(override, rate)
}

// captureCommand resolves the recorder argv.
func captureCommand(override []string, rate int) ([]string, error) {
	r := strconv.Itoa(rate)
	if len(override) > 0 {
		argv := make([]string, len(override))
		for i, a := range override {
			argv[i] = strings.ReplaceAll(a, "{rate}", r)
		}
		return argv, nil
	}

	have := func(name string) bool {
		_, err := exec.LookPath(name)
		return err == nil
	}

	switch runtime.GOOS {
	case "darwin":
		if have("sox") {
			return []string{"sox", "-q", "-d", "-t", "raw", "-r", r, "-e", "signed-integer", "-b", "16", "-c", "1", "-"}, nil
		}
		if have("ffmpeg") {
			return []string{"ffmpeg", "-loglevel", "quiet", "-f", "avfoundation", "-i", ":0", "-ar", r, "-ac", "1", "-f", "s16le", "-"}, nil
		}
		return nil, errors.New("install sox (brew install sox) or ffmpeg for voice recording")
	case "linux":
		if have("arecord") {
			return []string{"arecord", "-q", "-f", "S16_LE", "-r", r, "-c", "1", "-t", "raw"}, nil
		}
		if have("sox") {
			return []string{"sox", "-q", "-d", "-t", "raw", "-r", r, "-e", "signed-integer", "-b", "16", "-c", "1", "-"}, nil
		}
		if have("ffmpeg") {
			return []string{"ffmpeg", "-loglevel", "quiet", "-f", "pulse", "-i", "default", "-ar", r, "-ac", "1", "-f", "s16le", "-"}, nil
		}
		return nil, errors.New("install arecord (alsa-utils), sox or ffmpeg for voice recording")
	case "windows":
		if have("ffmpeg") {
			return []string{"ffmpeg", "-loglevel", "quiet", "-f", "dshow", "-i", "audio=Microphone", "-ar", r, "-ac", "1", "-f", "s16le", "-"}, nil
		}
		return nil, errors.New("install ffmpeg for voice recording")
	}
	return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
}
