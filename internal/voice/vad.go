package voice

import (
	"fmt"
	"log/slog"
	"math"
)

// Scorer returns the probability that a frame of float samples contains speech.
type Scorer interface {
	Score(frame []float32) (float32, error)
	// Reset clears internal state (call between utterances).
	Reset()
	Close() error
}

// ScorerOptions selects and configures a Scorer.
type ScorerOptions struct {
	Engine       string // "auto", "silero", "energy"
	SampleRate   int
	FrameSamples int
	ModelPath    string // silero_vad.onnx; defaults to ModelsDir()
	Logger       *slog.Logger
}

// NewScorer builds the configured engine. "auto" prefers Silero and falls back
// to the energy scorer when the model or runtime is unavailable.
func NewScorer(opts ScorerOptions) (Scorer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ModelPath == "" {
		opts.ModelPath = sileroModelPath()
	}

	switch opts.Engine {
	case "energy":
		return NewEnergyScorer(), nil
	case "silero":
		s, err := newSileroScorer(opts.ModelPath, opts.SampleRate, opts.FrameSamples)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVoiceDetectionInit, err)
		}
		return s, nil
	case "", "auto":
		s, err := newSileroScorer(opts.ModelPath, opts.SampleRate, opts.FrameSamples)
		if err != nil {
			logger.Info("silero VAD unavailable, using energy VAD", "reason", err)
			return NewEnergyScorer(), nil
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrVoiceDetectionInit, opts.Engine)
	}
}

// rms computes the root-mean-square of float samples in [-1, 1].
func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
