package prompt

import (
	"sort"
	"strings"

	"github.com/neboloop/ytvoice/internal/subtitles"
)

// DefaultExcerptWords bounds the subtitle excerpt in the position note.
const DefaultExcerptWords = 28

// Excerpt returns the subtitle text leading up to position: cues that
// started at or before it, newest first, until maxWords is reached. The
// newest cue is always included even if it alone exceeds the limit.
func Excerpt(entries []subtitles.Entry, position float64, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultExcerptWords
	}

	var started []subtitles.Entry
	for _, e := range entries {
		if e.Start <= position {
			started = append(started, e)
		}
	}
	sort.SliceStable(started, func(i, j int) bool { return started[i].Start < started[j].Start })

	var picked []string
	words := 0
	for i := len(started) - 1; i >= 0 && words < maxWords; i-- {
		text := strings.TrimSpace(started[i].Text)
		n := len(strings.Fields(text))
		if n == 0 {
			continue
		}
		if words+n > maxWords && len(picked) > 0 {
			break
		}
		picked = append(picked, text)
		words += n
	}

	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, " ")
}

// NewVideoContext assembles the query context from a subtitle track, which
// may be nil when none is available yet.
func NewVideoContext(videoID, title string, track *subtitles.Track, position float64, maxWords int) VideoContext {
	v := VideoContext{VideoID: videoID, Title: title, Position: position}
	if track != nil {
		v.FullTranscript = track.FullTranscript
		v.Excerpt = Excerpt(track.Entries, position, maxWords)
	}
	return v
}
