//go:build !cgo

package voice

import "errors"

func newSileroScorer(modelPath string, sampleRate, frameSamples int) (Scorer, error) {
	return nil, errors.New("silero VAD requires a cgo build")
}
