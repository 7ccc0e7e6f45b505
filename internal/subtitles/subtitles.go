// Package subtitles loads caption tracks for a video: from files dropped in
// a directory, from manual uploads, and through a SQLite cache.
package subtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no track exists for a video.
var ErrNotFound = errors.New("subtitles not found")

// Entry is one caption cue. Times are in seconds.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Track is the subtitle data for one video.
type Track struct {
	VideoID        string  `json:"videoId,omitempty"`
	FullTranscript string  `json:"fullTranscript"`
	Entries        []Entry `json:"timestamps"`
	// Source names where the track came from ("dir", "upload", ...).
	Source string `json:"source,omitempty"`
}

// Provider fetches the track for a video.
type Provider interface {
	Fetch(ctx context.Context, videoID string) (*Track, error)
}

// Format of a subtitle document.
type Format string

const (
	FormatJSON      Format = "json"
	FormatSRT       Format = "srt"
	FormatTimedText Format = "xml"
)

// DetectFormat guesses the format from the content.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	case bytes.HasPrefix(trimmed, []byte("<?xml")), bytes.Contains(trimmed, []byte("<transcript>")):
		return FormatTimedText
	default:
		return FormatSRT
	}
}

// Parse decodes data in the given format. An empty format is detected.
func Parse(format Format, data []byte) (*Track, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	var (
		entries []Entry
		err     error
	)
	switch format {
	case FormatJSON:
		var t Track
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse subtitle json: %w", err)
		}
		if t.FullTranscript == "" {
			t.FullTranscript = Transcript(t.Entries)
		}
		return &t, nil
	case FormatSRT:
		entries, err = ParseSRT(data)
	case FormatTimedText:
		entries, err = ParseTimedText(data)
	default:
		return nil, fmt.Errorf("unknown subtitle format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &Track{FullTranscript: Transcript(entries), Entries: entries}, nil
}

// Transcript joins the cue texts into one string.
func Transcript(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if t := strings.TrimSpace(e.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
