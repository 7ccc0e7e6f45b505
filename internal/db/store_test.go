package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLite_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSubtitles_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetSubtitles(ctx, "abc123")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutSubtitles(ctx, SubtitleRow{VideoID: "abc123", Source: "dir", Payload: []byte(`{"a":1}`)}))
	got, err := s.GetSubtitles(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "dir", got.Source)
	assert.Equal(t, `{"a":1}`, string(got.Payload))
	assert.False(t, got.FetchedAt.IsZero())

	// Upsert replaces the payload.
	require.NoError(t, s.PutSubtitles(ctx, SubtitleRow{VideoID: "abc123", Source: "upload", Payload: []byte(`{}`)}))
	got, err = s.GetSubtitles(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "upload", got.Source)

	list, err := s.ListSubtitles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Payload)

	require.NoError(t, s.DeleteSubtitles(ctx, "abc123"))
	_, err = s.GetSubtitles(ctx, "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertEvent(ctx, "voice_query", `{"success":true}`, now))
	require.NoError(t, s.InsertEvent(ctx, "error", "", now))
	require.NoError(t, s.InsertEvent(ctx, "voice_query", `{"success":false}`, now))

	n, err := s.CountEvents(ctx, "voice_query")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "voice_query", recent[0].Name)
	assert.Equal(t, `{"success":false}`, recent[0].Properties)
	assert.Equal(t, "{}", recent[1].Properties)
}
