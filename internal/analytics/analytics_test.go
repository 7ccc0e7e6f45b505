package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/events"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memSink) Track(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Name)
	}
	return out
}

func TestTracker_StampsAndDelivers(t *testing.T) {
	sink := &memSink{}
	tr := NewTracker(sink, nil, nil)

	tr.Track(context.Background(), VoiceQuery(true))

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventVoiceQuery, sink.events[0].Name)
	assert.Equal(t, true, sink.events[0].Properties["success"])
	assert.False(t, sink.events[0].Time.IsZero())
}

func TestTracker_Disabled(t *testing.T) {
	sink := &memSink{}
	enabled := false
	tr := NewTracker(sink, func() bool { return enabled }, nil)

	tr.Track(context.Background(), Error("network"))
	assert.Empty(t, sink.events)

	enabled = true
	tr.Track(context.Background(), Error("network"))
	assert.Len(t, sink.events, 1)
}

func TestTracker_SwallowsFailures(t *testing.T) {
	panicky := SinkFunc(func(context.Context, Event) error { panic("sink exploded") })
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("disk full") })

	assert.NotPanics(t, func() {
		NewTracker(panicky, nil, nil).Track(context.Background(), VoiceQuery(false))
		NewTracker(failing, nil, nil).Track(context.Background(), VoiceQuery(false))
		var nilTracker *Tracker
		nilTracker.Track(context.Background(), VoiceQuery(false))
	})
}

func TestTracker_IgnoresCancelledContext(t *testing.T) {
	var sawErr error
	sink := SinkFunc(func(ctx context.Context, _ Event) error {
		sawErr = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewTracker(sink, nil, nil).Track(ctx, VoiceQuery(true))
	assert.NoError(t, sawErr)
}

func TestMulti(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("down") })

	err := Multi(a, failing, b).Track(context.Background(), SubtitleLoad("dir", false))
	assert.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, LogSink{Logger: logger}.Track(context.Background(), SubtitleLoad("cache", true)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "subtitle_load", line["event"])
	assert.Equal(t, "cache", line["source"])
	assert.Equal(t, true, line["cached"])
}

func TestStoreSink(t *testing.T) {
	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "a.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	sink := StoreSink{Store: store}
	require.NoError(t, sink.Track(ctx, Event{Name: EventError, Properties: map[string]any{"type": "timeout"}, Time: time.Now()}))

	rows, err := store.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "error", rows[0].Name)
	assert.JSONEq(t, `{"type":"timeout"}`, rows[0].Properties)
}

func TestBusSink_Forward(t *testing.T) {
	bus := events.New(events.WithSyncDelivery())
	sink := &memSink{}
	Forward(bus, sink)

	tr := NewTracker(BusSink{Bus: bus}, nil, nil)
	tr.Track(context.Background(), VoiceQuery(true))
	tr.Track(context.Background(), Error("recording_timeout"))
	bus.Close()

	assert.Equal(t, []string{EventVoiceQuery, EventError}, sink.names())
}
