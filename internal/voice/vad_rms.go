package voice

// defaultEnergyKnee is the RMS level scored as 0.5. With the default
// thresholds speech starts at RMS 0.015 and ends below roughly 0.008.
const defaultEnergyKnee = 0.015

// EnergyScorer is a pure-Go scorer that maps frame RMS energy onto a
// speech probability. It has no model and never fails.
type EnergyScorer struct {
	knee float64
}

// NewEnergyScorer returns an EnergyScorer with the default knee.
func NewEnergyScorer() *EnergyScorer {
	return &EnergyScorer{knee: defaultEnergyKnee}
}

// Score returns rms/(rms+knee).
func (e *EnergyScorer) Score(frame []float32) (float32, error) {
	level := rms(frame)
	return float32(level / (level + e.knee)), nil
}

func (e *EnergyScorer) Reset() {}

func (e *EnergyScorer) Close() error { return nil }
