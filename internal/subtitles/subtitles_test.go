package subtitles

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/ytvoice/internal/analytics"
	"github.com/neboloop/ytvoice/internal/db"
)

const sampleSRT = "1\r\n00:00:01,000 --> 00:00:03,500\r\nHello <i>and</i> welcome\r\n\r\n" +
	"2\r\n00:00:04,000 --> 00:00:06,250\r\nto the show\r\nsecond line\r\n\r\n" +
	"garbage block\r\n\r\n" +
	"3\r\n01:02:03,004 --> 01:02:05,000\r\nlate cue\r\n"

func TestParseSRT(t *testing.T) {
	entries, err := ParseSRT([]byte(sampleSRT))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, Entry{Start: 1, End: 3.5, Text: "Hello and welcome"}, entries[0])
	assert.Equal(t, "to the show second line", entries[1].Text)
	assert.InDelta(t, 3723.004, entries[2].Start, 1e-9)

	_, err = ParseSRT([]byte("not subtitles at all"))
	assert.ErrorIs(t, err, errNoCues)
}

func TestParseTimedText(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
		`<text start="0.5" dur="2.1">it&amp;#39;s   here</text>` +
		`<text start="2.6" dur="1">next</text></transcript>`

	entries, err := ParseTimedText([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "it's here", entries[0].Text)
	assert.InDelta(t, 2.6, entries[0].End, 1e-9)
}

func TestParse_DetectsFormat(t *testing.T) {
	track, err := Parse("", []byte(`{"fullTranscript":"","timestamps":[{"start":1,"end":2,"text":"a"},{"start":2,"end":3,"text":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "a b", track.FullTranscript)
	assert.Len(t, track.Entries, 2)

	track, err = Parse("", []byte(sampleSRT))
	require.NoError(t, err)
	assert.Equal(t, "Hello and welcome to the show second line late cue", track.FullTranscript)

	assert.Equal(t, FormatTimedText, DetectFormat([]byte("<transcript><text start=\"1\">x</text></transcript>")))
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc_123-XY.srt"), []byte(sampleSRT), 0644))
	p := DirProvider{Dir: dir}

	track, err := p.Fetch(context.Background(), "abc_123-XY")
	require.NoError(t, err)
	assert.Equal(t, "dir", track.Source)
	assert.Equal(t, "abc_123-XY", track.VideoID)
	assert.Len(t, track.Entries, 3)

	_, err = p.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Fetch(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

type eventLog struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (l *eventLog) Track(_ context.Context, e analytics.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func newCache(t *testing.T, next Provider) (*CachedProvider, *eventLog) {
	t.Helper()
	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "subs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	log := &eventLog{}
	return NewCachedProvider(store, next, analytics.NewTracker(log, nil, nil), nil), log
}

func TestCachedProvider_MissThenHit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vid1.srt"), []byte(sampleSRT), 0644))
	cache, log := newCache(t, DirProvider{Dir: dir})
	ctx := context.Background()

	first, err := cache.Fetch(ctx, "vid1")
	require.NoError(t, err)

	// Remove the file: the second fetch must come from SQLite.
	require.NoError(t, os.Remove(filepath.Join(dir, "vid1.srt")))
	second, err := cache.Fetch(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.FullTranscript, second.FullTranscript)
	assert.Equal(t, "dir", second.Source)

	require.Len(t, log.events, 2)
	assert.Equal(t, map[string]any{"source": "dir", "cached": false}, log.events[0].Properties)
	assert.Equal(t, map[string]any{"source": "dir", "cached": true}, log.events[1].Properties)
}

func TestCachedProvider_NotFound(t *testing.T) {
	cache, log := newCache(t, nil)
	_, err := cache.Fetch(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNotFound)

	cache, _ = newCache(t, DirProvider{Dir: t.TempDir()})
	_, err = cache.Fetch(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, log.events)
}

func TestCachedProvider_ImportListDelete(t *testing.T) {
	cache, _ := newCache(t, nil)
	ctx := context.Background()

	track, err := cache.Import(ctx, "vid2", FormatSRT, []byte(sampleSRT))
	require.NoError(t, err)
	assert.Equal(t, "upload", track.Source)

	got, err := cache.Fetch(ctx, "vid2")
	require.NoError(t, err)
	assert.Equal(t, "upload", got.Source)
	assert.Len(t, got.Entries, 3)

	rows, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "vid2", rows[0].VideoID)

	require.NoError(t, cache.Delete(ctx, "vid2"))
	_, err = cache.Fetch(ctx, "vid2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cache.Import(ctx, "bad/id", FormatSRT, []byte(sampleSRT))
	assert.Error(t, err)
	_, err = cache.Import(ctx, "vid3", FormatSRT, []byte("junk"))
	assert.Error(t, err)
}
