//go:build cgo

package voice

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroStateSize  = 2 * 1 * 128
	sileroContext16k = 64
	sileroContext8k  = 32
)

var ortInitMu sync.Mutex

// sileroScorer runs the Silero VAD v5 ONNX model. Frames are 512 samples at
// 16 kHz (256 at 8 kHz); the model keeps a recurrent state and a short
// audio context across calls.
type sileroScorer struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	state      *ort.Tensor[float32] // [2, 1, 128]
	sr         *ort.Tensor[int64]
	context    []float32
	frameSize  int
	sampleRate int
}

func newSileroScorer(modelPath string, sampleRate, frameSamples int) (Scorer, error) {
	var ctxSize int
	switch {
	case sampleRate == 16000 && frameSamples == 512:
		ctxSize = sileroContext16k
	case sampleRate == 8000 && frameSamples == 256:
		ctxSize = sileroContext8k
	default:
		return nil, fmt.Errorf("silero VAD needs 512-sample frames at 16kHz or 256 at 8kHz, got %d at %d", frameSamples, sampleRate)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero model not found at %s", modelPath)
	}
	if err := initONNXRuntime(); err != nil {
		return nil, err
	}

	state, err := ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, sileroStateSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create state tensor: %w", err)
	}
	sr, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sampleRate)})
	if err != nil {
		state.Destroy()
		return nil, fmt.Errorf("failed to create sr tensor: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil,
	)
	if err != nil {
		state.Destroy()
		sr.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &sileroScorer{
		session:    session,
		state:      state,
		sr:         sr,
		context:    make([]float32, ctxSize),
		frameSize:  frameSamples,
		sampleRate: sampleRate,
	}, nil
}

// Score runs one inference step and returns the speech probability.
func (s *sileroScorer) Score(frame []float32) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return 0, fmt.Errorf("silero scorer closed")
	}
	if len(frame) != s.frameSize {
		return 0, fmt.Errorf("silero frame must be %d samples, got %d", s.frameSize, len(frame))
	}

	input := make([]float32, 0, len(s.context)+len(frame))
	input = append(input, s.context...)
	input = append(input, frame...)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, err
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, err
	}
	defer outputTensor.Destroy()

	newState, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return 0, err
	}
	defer newState.Destroy()

	if err := s.session.Run(
		[]ort.Value{inputTensor, s.state, s.sr},
		[]ort.Value{outputTensor, newState},
	); err != nil {
		return 0, fmt.Errorf("silero inference: %w", err)
	}

	copy(s.state.GetData(), newState.GetData())
	copy(s.context, input[len(input)-len(s.context):])
	return outputTensor.GetData()[0], nil
}

// Reset clears the recurrent state and context.
func (s *sileroScorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}
	clear(s.state.GetData())
	clear(s.context)
}

func (s *sileroScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	s.session.Destroy()
	s.state.Destroy()
	s.sr.Destroy()
	s.session, s.state, s.sr = nil, nil, nil
	return nil
}

func initONNXRuntime() error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if lib := onnxRuntimeLibPath(); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// onnxRuntimeLibPath returns the platform-specific path to the ONNX Runtime shared library.
// YTVOICE_ONNXRUNTIME_LIB wins, then ModelsDir(), then system paths.
func onnxRuntimeLibPath() string {
	if p := os.Getenv("YTVOICE_ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	if name := onnxRuntimeLibName(); name != "" {
		downloaded := filepath.Join(ModelsDir(), name)
		if _, err := os.Stat(downloaded); err == nil {
			return downloaded
		}
	}

	switch runtime.GOOS {
	case "darwin":
		for _, p := range []string{"/opt/homebrew/lib/libonnxruntime.dylib", "/usr/local/lib/libonnxruntime.dylib"} {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	case "linux":
		for _, p := range []string{"/usr/lib/libonnxruntime.so", "/usr/local/lib/libonnxruntime.so"} {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	case "windows":
		return "onnxruntime.dll"
	}
	return ""
}
