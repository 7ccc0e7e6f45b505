// Package analytics records pipeline events. Tracking is fire and forget:
// nothing a sink does can fail or stall a voice query.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/events"
)

// Event names.
const (
	EventVoiceQuery   = "voice_query"
	EventSubtitleLoad = "subtitle_load"
	EventError        = "error"
)

// Event is one analytics record.
type Event struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Time       time.Time      `json:"time"`
}

// VoiceQuery reports the outcome of one query.
func VoiceQuery(success bool) Event {
	return Event{Name: EventVoiceQuery, Properties: map[string]any{"success": success}}
}

// SubtitleLoad reports where a subtitle track came from.
func SubtitleLoad(source string, cached bool) Event {
	return Event{Name: EventSubtitleLoad, Properties: map[string]any{"source": source, "cached": cached}}
}

// Error reports a failure by category.
func Error(kind string) Event {
	return Event{Name: EventError, Properties: map[string]any{"type": kind}}
}

// Sink consumes events.
type Sink interface {
	Track(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(context.Context, Event) error

func (f SinkFunc) Track(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Tracker is the pipeline-facing entry point. It stamps events, drops them
// when tracking is disabled and swallows sink errors and panics.
type Tracker struct {
	sink    Sink
	enabled func() bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker wraps sink. enabled is consulted per event; nil means always.
func NewTracker(sink Sink, enabled func() bool, logger *slog.Logger) *Tracker {
	if sink == nil {
		sink = Nop
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{sink: sink, enabled: enabled, logger: logger, now: time.Now}
}

// Track delivers e. It never fails.
func (t *Tracker) Track(ctx context.Context, e Event) {
	if t == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("analytics sink panic", "event", e.Name, "panic", r)
		}
	}()
	if t.enabled != nil && !t.enabled() {
		return
	}
	if e.Time.IsZero() {
		e.Time = t.now()
	}
	if err := t.sink.Track(context.WithoutCancel(ctx), e); err != nil {
		t.logger.Debug("analytics sink error", "event", e.Name, "error", err)
	}
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Track(ctx context.Context, e Event) error {
	args := make([]any, 0, 2+2*len(e.Properties))
	args = append(args, "event", e.Name)
	for k, v := range e.Properties {
		args = append(args, k, v)
	}
	s.Logger.InfoContext(ctx, "analytics", args...)
	return nil
}

// StoreSink appends events to the SQLite event log.
type StoreSink struct {
	Store *db.Store
}

func (s StoreSink) Track(ctx context.Context, e Event) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return err
	}
	return s.Store.InsertEvent(ctx, e.Name, string(props), e.Time)
}

// Multi delivers to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		var first error
		for _, s := range sinks {
			if err := s.Track(ctx, e); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// BusSink hands events to an event bus so sinks run off the caller's
// goroutine. Pair it with Forward.
type BusSink struct {
	Bus *events.Bus
}

func (s BusSink) Track(_ context.Context, e Event) error {
	return events.Emit(s.Bus, events.TopicAnalytics, e)
}

// Forward subscribes sink to the analytics topic of bus.
func Forward(bus *events.Bus, sink Sink) events.Subscription {
	return events.Subscribe(bus, events.TopicAnalytics, func(ctx context.Context, e Event) error {
		return sink.Track(ctx, e)
	})
}
