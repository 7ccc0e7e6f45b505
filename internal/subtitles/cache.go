package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neboloop/ytvoice/internal/analytics"
	"github.com/neboloop/ytvoice/internal/db"
)

// CachedProvider serves tracks from SQLite and falls back to Next on a miss,
// caching what Next returns. Every successful load is reported as a
// subtitle_load event.
type CachedProvider struct {
	store   *db.Store
	next    Provider
	tracker *analytics.Tracker
	logger  *slog.Logger
}

// NewCachedProvider wraps next (which may be nil) with the cache in store.
func NewCachedProvider(store *db.Store, next Provider, tracker *analytics.Tracker, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedProvider{store: store, next: next, tracker: tracker, logger: logger}
}

func (p *CachedProvider) Fetch(ctx context.Context, videoID string) (*Track, error) {
	row, err := p.store.GetSubtitles(ctx, videoID)
	switch {
	case err == nil:
		var t Track
		if err := json.Unmarshal(row.Payload, &t); err != nil {
			return nil, fmt.Errorf("decode cached subtitles: %w", err)
		}
		t.VideoID = videoID
		t.Source = row.Source
		p.tracker.Track(ctx, analytics.SubtitleLoad(row.Source, true))
		return &t, nil
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	if p.next == nil {
		return nil, ErrNotFound
	}
	t, err := p.next.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := p.put(ctx, videoID, t); err != nil {
		p.logger.Warn("subtitle cache write failed", "video", videoID, "error", err)
	}
	p.tracker.Track(ctx, analytics.SubtitleLoad(t.Source, false))
	return t, nil
}

// Import parses an uploaded document and stores it, replacing any cached
// track for the video.
func (p *CachedProvider) Import(ctx context.Context, videoID string, format Format, data []byte) (*Track, error) {
	if !ValidVideoID(videoID) {
		return nil, fmt.Errorf("invalid video id %q", videoID)
	}
	t, err := Parse(format, data)
	if err != nil {
		return nil, err
	}
	t.VideoID = videoID
	t.Source = "upload"
	if err := p.put(ctx, videoID, t); err != nil {
		return nil, err
	}
	p.logger.Info("subtitles imported", "video", videoID, "cues", len(t.Entries))
	return t, nil
}

// Delete drops the cached track for videoID.
func (p *CachedProvider) Delete(ctx context.Context, videoID string) error {
	return p.store.DeleteSubtitles(ctx, videoID)
}

// List returns the cached tracks without their payloads.
func (p *CachedProvider) List(ctx context.Context) ([]db.SubtitleRow, error) {
	return p.store.ListSubtitles(ctx)
}

func (p *CachedProvider) put(ctx context.Context, videoID string, t *Track) error {
	payload, err := json.Marshal(Track{FullTranscript: t.FullTranscript, Entries: t.Entries})
	if err != nil {
		return err
	}
	return p.store.PutSubtitles(ctx, db.SubtitleRow{VideoID: videoID, Source: t.Source, Payload: payload})
}
