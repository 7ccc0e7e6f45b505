package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrMicrophoneUnavailable means the capture device could not be opened
	// or stopped delivering audio.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")

	// ErrVoiceDetectionInit means no voice-activity engine could be created.
	ErrVoiceDetectionInit = errors.New("voice detection initialization failed")

	// ErrVoiceDetection means the engine failed while scoring frames.
	ErrVoiceDetection = errors.New("voice detection failed")

	// ErrAlreadyRecording is returned when Record is called while a session is active.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrInvalidAudio is returned for clips that are not decodable PCM WAV.
	ErrInvalidAudio = errors.New("invalid audio")
)

// PlaybackError reports an audio decode or output failure.
type PlaybackError struct {
	Op  string // "decode" or "play"
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// IsRecorderFailure reports whether err means the VAD recorder itself could
// not work, as opposed to the user simply not speaking.
func IsRecorderFailure(err error) bool {
	return errors.Is(err, ErrMicrophoneUnavailable) ||
		errors.Is(err, ErrVoiceDetectionInit) ||
		errors.Is(err, ErrVoiceDetection)
}
