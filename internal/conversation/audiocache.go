package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
)

const (
	DefaultAudioTTL = 30 * time.Minute
	sweepSchedule   = "@every 5m"
)

type audioEntry struct {
	data    []byte
	expires time.Time
}

// AudioCache holds synthesized replies in memory so the last answer can be
// replayed. Entries expire after the TTL; a cron job sweeps them.
type AudioCache struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	entries   map[string]audioEntry
	scheduler *cronlib.Cron
}

func NewAudioCache(ttl time.Duration, logger *slog.Logger) *AudioCache {
	if ttl <= 0 {
		ttl = DefaultAudioTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AudioCache{
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]audioEntry),
	}
}

// Start schedules the periodic sweep. Calling it twice is a no-op.
func (c *AudioCache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return nil
	}
	s := cronlib.New()
	if _, err := s.AddFunc(sweepSchedule, func() { c.Sweep() }); err != nil {
		return fmt.Errorf("schedule audio sweep: %w", err)
	}
	s.Start()
	c.scheduler = s
	return nil
}

// Put stores audio and returns its reference. Empty audio is not stored.
func (c *AudioCache) Put(audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	ref := uuid.NewString()
	c.mu.Lock()
	c.entries[ref] = audioEntry{data: audio, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return ref
}

// Get returns the audio for ref if it has not expired.
func (c *AudioCache) Get(ref string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ref]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.data, true
}

// Delete drops the given refs. Unknown refs are ignored.
func (c *AudioCache) Delete(refs ...string) {
	c.mu.Lock()
	for _, ref := range refs {
		delete(c.entries, ref)
	}
	c.mu.Unlock()
}

// Sweep drops expired entries and returns how many were removed.
func (c *AudioCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for ref, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, ref)
			n++
		}
	}
	if n > 0 {
		c.logger.Debug("audio cache swept", "removed", n, "remaining", len(c.entries))
	}
	return n
}

func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Close stops the sweep and clears the cache.
func (c *AudioCache) Close() error {
	c.mu.Lock()
	s := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()
	if s != nil {
		<-s.Stop().Done()
	}
	c.Clear()
	return nil
}
