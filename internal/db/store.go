package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the database handle with typed queries.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SubtitleRow is one cached subtitle track.
type SubtitleRow struct {
	VideoID   string
	Source    string
	Payload   []byte
	FetchedAt time.Time
}

// GetSubtitles returns the cached track for videoID or ErrNotFound.
func (s *Store) GetSubtitles(ctx context.Context, videoID string) (*SubtitleRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT video_id, source, payload, fetched_at FROM subtitle_cache WHERE video_id = ?`, videoID)
	var r SubtitleRow
	var fetched int64
	if err := row.Scan(&r.VideoID, &r.Source, &r.Payload, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subtitles: %w", err)
	}
	r.FetchedAt = time.UnixMilli(fetched)
	return &r, nil
}

// PutSubtitles inserts or replaces the cached track for r.VideoID.
func (s *Store) PutSubtitles(ctx context.Context, r SubtitleRow) error {
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subtitle_cache (video_id, source, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			source = excluded.source,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		r.VideoID, r.Source, r.Payload, r.FetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put subtitles: %w", err)
	}
	return nil
}

// DeleteSubtitles removes a cached track. Deleting a missing row is not an error.
func (s *Store) DeleteSubtitles(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subtitle_cache WHERE video_id = ?`, videoID)
	return err
}

// ListSubtitles returns cached tracks without payloads, newest first.
func (s *Store) ListSubtitles(ctx context.Context) ([]SubtitleRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, source, fetched_at FROM subtitle_cache ORDER BY fetched_at DESC, video_id`)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	defer rows.Close()

	var out []SubtitleRow
	for rows.Next() {
		var r SubtitleRow
		var fetched int64
		if err := rows.Scan(&r.VideoID, &r.Source, &fetched); err != nil {
			return nil, err
		}
		r.FetchedAt = time.UnixMilli(fetched)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventRow is one recorded analytics event.
type EventRow struct {
	ID         int64
	Name       string
	Properties string // JSON object
	CreatedAt  time.Time
}

// InsertEvent appends an analytics event.
func (s *Store) InsertEvent(ctx context.Context, name, properties string, at time.Time) error {
	if properties == "" {
		properties = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (name, properties, created_at) VALUES (?, ?, ?)`,
		name, properties, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, properties, created_at FROM analytics_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var created int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Properties, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns how many events named name were recorded.
func (s *Store) CountEvents(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events WHERE name = ?`, name).Scan(&n)
	return n, err
}
