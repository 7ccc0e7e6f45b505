package subtitles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidVideoID reports whether id is safe to use as a file or cache key.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// DirProvider reads <videoID>.json, <videoID>.srt or <videoID>.xml from a
// directory, in that order.
type DirProvider struct {
	Dir string
}

var dirFormats = []struct {
	ext    string
	format Format
}{
	{".json", FormatJSON},
	{".srt", FormatSRT},
	{".xml", FormatTimedText},
}

func (p DirProvider) Fetch(_ context.Context, videoID string) (*Track, error) {
	if !ValidVideoID(videoID) {
		return nil, fmt.Errorf("invalid video id %q", videoID)
	}
	for _, f := range dirFormats {
		data, err := os.ReadFile(filepath.Join(p.Dir, videoID+f.ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		track, err := Parse(f.format, data)
		if err != nil {
			return nil, fmt.Errorf("%s%s: %w", videoID, f.ext, err)
		}
		track.VideoID = videoID
		track.Source = "dir"
		return track, nil
	}
	return nil, ErrNotFound
}
