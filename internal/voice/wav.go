package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Clip is one finalized utterance encoded as a 16-bit mono PCM WAV file.
type Clip struct {
	WAV        []byte
	SampleRate int
	Samples    int
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Samples) * time.Second / time.Duration(c.SampleRate)
}

// NewClip encodes float samples in [-1, 1] as a WAV clip.
func NewClip(samples []float32, sampleRate int) *Clip {
	return &Clip{
		WAV:        EncodeWAV(samples, sampleRate),
		SampleRate: sampleRate,
		Samples:    len(samples),
	}
}

// EncodeWAV writes mono 16-bit PCM WAV bytes for float samples in [-1, 1].
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := uint32(len(samples) * 2)
	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))           // chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))            // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	pcm := make([]byte, 2)
	for _, s := range samples {
		binary.LittleEndian.PutUint16(pcm, uint16(floatToInt16(s)))
		buf.Write(pcm)
	}
	return buf.Bytes()
}

// WAVInfo describes a decoded WAV header.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int

	dataOffset int
}

// Duration returns the playback length of the data chunk.
func (w WAVInfo) Duration() time.Duration {
	frame := w.Channels * w.BitsPerSample / 8
	if frame == 0 || w.SampleRate == 0 {
		return 0
	}
	return time.Duration(w.DataBytes/frame) * time.Second / time.Duration(w.SampleRate)
}

// ParseWAV validates a RIFF/WAVE PCM file and returns its format.
// Unknown chunks between fmt and data are skipped.
func ParseWAV(data []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidAudio)
	}
	haveFmt := false
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Streamed WAVs may carry a placeholder data size; accept what is there.
			if id == "data" && haveFmt {
				info.DataBytes = len(data) - body
				info.dataOffset = body
				return info, nil
			}
			return info, fmt.Errorf("%w: truncated %q chunk", ErrInvalidAudio, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return info, fmt.Errorf("%w: short fmt chunk", ErrInvalidAudio)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 && format != 0xFFFE {
				return info, fmt.Errorf("%w: unsupported encoding %d", ErrInvalidAudio, format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			if info.Channels == 0 || info.SampleRate == 0 || info.BitsPerSample == 0 {
				return info, fmt.Errorf("%w: zero field in fmt chunk", ErrInvalidAudio)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, fmt.Errorf("%w: data before fmt", ErrInvalidAudio)
			}
			info.DataBytes = size
			info.dataOffset = body
			return info, nil
		}
		off = body + size + size%2
	}
	return info, fmt.Errorf("%w: no data chunk", ErrInvalidAudio)
}

// DecodeWAV returns the float samples of a mono 16-bit PCM WAV.
func DecodeWAV(data []byte) ([]float32, int, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if info.Channels != 1 || info.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("%w: want mono 16-bit, got %d ch %d bit", ErrInvalidAudio, info.Channels, info.BitsPerSample)
	}
	raw := data[info.dataOffset : info.dataOffset+info.DataBytes]
	return int16ToFloat(raw), info.SampleRate, nil
}

// int16ToFloat converts raw Int16LE bytes to float samples in [-1, 1).
func int16ToFloat(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s) * 32767.0
	v = math.Max(-32768, math.Min(32767, math.Round(v)))
	return int16(v)
}
