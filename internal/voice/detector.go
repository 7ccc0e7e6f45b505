package voice

import "fmt"

// DetectorConfig holds the speech segmentation thresholds. Frame counts are
// in scorer frames (512 samples, 32ms at 16kHz).
type DetectorConfig struct {
	PositiveThreshold  float32 // probability at or above which a frame is speech
	NegativeThreshold  float32 // probability below which a frame counts toward ending speech
	MinSpeechFrames    int     // speech frames a segment needs to not be a misfire
	PreSpeechPadFrames int     // frames kept from before the first speech frame
	RedemptionFrames   int     // consecutive quiet frames that end a segment
}

// DefaultDetectorConfig returns the stock thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PositiveThreshold:  0.5,
		NegativeThreshold:  0.35,
		MinSpeechFrames:    16,
		PreSpeechPadFrames: 16,
		RedemptionFrames:   40,
	}
}

// EventKind identifies a detector transition.
type EventKind int

const (
	EventNone EventKind = iota
	EventSpeechStart
	EventSpeechEnd
	EventMisfire
)

func (k EventKind) String() string {
	switch k {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	case EventMisfire:
		return "misfire"
	default:
		return "none"
	}
}

// Event is returned from Detector.Process. Audio is set only for EventSpeechEnd.
type Event struct {
	Kind  EventKind
	Audio []float32
}

type scoredFrame struct {
	samples  []float32
	isSpeech bool
}

// Detector segments a stream of frames into utterances using a Scorer.
// It is not safe for concurrent use.
type Detector struct {
	cfg    DetectorConfig
	scorer Scorer

	buffer       []scoredFrame
	speaking     bool
	redemption   int
	speechFrames int
}

// NewDetector wraps scorer with segmentation state.
func NewDetector(scorer Scorer, cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg, scorer: scorer}
}

// Speaking reports whether a segment is in progress.
func (d *Detector) Speaking() bool { return d.speaking }

// Process scores one frame and advances the state machine. The frame is copied.
func (d *Detector) Process(frame []float32) (Event, error) {
	p, err := d.scorer.Score(frame)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrVoiceDetection, err)
	}

	isSpeech := p >= d.cfg.PositiveThreshold
	d.buffer = append(d.buffer, scoredFrame{samples: append([]float32(nil), frame...), isSpeech: isSpeech})

	ev := Event{}
	if isSpeech {
		d.speechFrames++
		d.redemption = 0
		if !d.speaking {
			d.speaking = true
			ev.Kind = EventSpeechStart
		}
	}

	if d.speaking && p < d.cfg.NegativeThreshold {
		d.redemption++
		if d.redemption >= d.cfg.RedemptionFrames {
			ev = d.finish()
		}
	}

	if !d.speaking {
		d.trimPadding()
	}
	return ev, nil
}

// finish closes the current segment and returns SpeechEnd or Misfire.
func (d *Detector) finish() Event {
	frames := d.buffer
	speech := d.speechFrames
	d.buffer = nil
	d.speaking = false
	d.redemption = 0
	d.speechFrames = 0

	if speech < d.cfg.MinSpeechFrames {
		return Event{Kind: EventMisfire}
	}
	n := 0
	for _, f := range frames {
		n += len(f.samples)
	}
	audio := make([]float32, 0, n)
	for _, f := range frames {
		audio = append(audio, f.samples...)
	}
	return Event{Kind: EventSpeechEnd, Audio: audio}
}

func (d *Detector) trimPadding() {
	if extra := len(d.buffer) - d.cfg.PreSpeechPadFrames; extra > 0 {
		d.buffer = append(d.buffer[:0:0], d.buffer[extra:]...)
	}
}

// Reset discards any partial segment and the scorer's state.
func (d *Detector) Reset() {
	d.buffer = nil
	d.speaking = false
	d.redemption = 0
	d.speechFrames = 0
	d.scorer.Reset()
}
