// Package events is a small in-process topic bus. Emit hands a value to a
// single dispatch goroutine, so a slow or failing subscriber never holds up
// the caller.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Topics used across the application.
const (
	TopicAnalytics = "analytics"
	TopicStatus    = "assistant.status"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("event bus closed")

const emitTimeout = 5 * time.Second

// HandlerFunc is the function called when an event is emitted.
type HandlerFunc func(context.Context, any) error

// Option configures a Bus.
type Option func(*options)

type options struct {
	bufferSize     int
	syncDelivery   bool
	handlerTimeout time.Duration
	logger         *slog.Logger
}

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithLogger sets the logger used for handler errors and panics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSyncDelivery runs handlers one at a time on the dispatch goroutine,
// in emit order. Use it when handlers must not run concurrently, such as
// writes to a single websocket.
func WithSyncDelivery() Option {
	return func(o *options) {
		o.syncDelivery = true
	}
}

// Subscription is a handler registered for one topic.
type Subscription struct {
	Topic string
	ID    string

	handler HandlerFunc
	bus     *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.remove(s.Topic, s.ID)
	}
}

type envelope struct {
	topic string
	value any
}

type subscriberMap map[string]map[string]Subscription

// Bus fans emitted values out to the subscribers of their topic.
type Bus struct {
	subscribers atomic.Pointer[subscriberMap]
	nextID      atomic.Int64

	events   chan envelope
	shutdown chan struct{}
	closed   atomic.Bool
	loop     sync.WaitGroup
	inflight sync.WaitGroup

	opts options
}

// New creates a Bus and starts its dispatch goroutine.
func New(opts ...Option) *Bus {
	o := options{bufferSize: 512, handlerTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	b := &Bus{
		events:   make(chan envelope, o.bufferSize),
		shutdown: make(chan struct{}),
		opts:     o,
	}
	empty := make(subscriberMap)
	b.subscribers.Store(&empty)

	b.loop.Add(1)
	go b.run()
	return b
}

// Emit queues value for the subscribers of topic.
func Emit[T any](b *Bus, topic string, value T) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.events <- envelope{topic: topic, value: value}:
		return nil
	case <-time.After(emitTimeout):
		return fmt.Errorf("emit %s: buffer full", topic)
	}
}

// Subscribe registers a typed handler for topic. Values of other types
// emitted on the same topic are skipped.
func Subscribe[T any](b *Bus, topic string, handler func(context.Context, T) error) Subscription {
	wrapped := HandlerFunc(func(ctx context.Context, v any) error {
		typed, ok := v.(T)
		if !ok {
			return fmt.Errorf("unexpected %T on %s, want %T", v, topic, *new(T))
		}
		return handler(ctx, typed)
	})

	sub := Subscription{
		Topic:   topic,
		ID:      fmt.Sprintf("%s-%d", topic, b.nextID.Add(1)),
		handler: wrapped,
		bus:     b,
	}
	b.update(func(m subscriberMap) {
		if m[topic] == nil {
			m[topic] = make(map[string]Subscription)
		}
		m[topic][sub.ID] = sub
	})
	return sub
}

// Close stops accepting events, delivers what is already queued and waits
// for running handlers. Idempotent.
func (b *Bus) Close() {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.shutdown)
	b.loop.Wait()
	b.inflight.Wait()
}

func (b *Bus) run() {
	defer b.loop.Done()
	for {
		select {
		case evt := <-b.events:
			b.dispatch(evt)
		case <-b.shutdown:
			for {
				select {
				case evt := <-b.events:
					b.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(evt envelope) {
	subs := *b.subscribers.Load()
	for _, sub := range subs[evt.topic] {
		if b.opts.syncDelivery {
			b.deliver(sub, evt)
			continue
		}
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.deliver(sub, evt)
		}()
	}
}

func (b *Bus) deliver(sub Subscription, evt envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.logger.Error("event handler panic", "topic", evt.topic, "subscription", sub.ID, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.handlerTimeout)
	defer cancel()
	if err := sub.handler(ctx, evt.value); err != nil {
		b.opts.logger.Debug("event handler error", "topic", evt.topic, "subscription", sub.ID, "error", err)
	}
}

func (b *Bus) remove(topic, id string) {
	b.update(func(m subscriberMap) {
		delete(m[topic], id)
		if len(m[topic]) == 0 {
			delete(m, topic)
		}
	})
}

// update applies fn to a copy of the subscriber map and swaps it in.
func (b *Bus) update(fn func(subscriberMap)) {
	for {
		old := b.subscribers.Load()
		next := make(subscriberMap, len(*old))
		for topic, subs := range *old {
			next[topic] = make(map[string]Subscription, len(subs))
			for id, s := range subs {
				next[topic][id] = s
			}
		}
		fn(next)
		if b.subscribers.CompareAndSwap(old, &next) {
			return
		}
	}
}
