// Package conversation keeps bounded, per-video question and answer history
// in memory. Nothing here is persisted; a Store lives for one assistant
// session and is wiped with ClearAll when the session ends.
package conversation

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxTurns  = 20
	DefaultMaxVideos = 10
)

var (
	ErrNoActiveVideo = errors.New("no active video")
	ErrEmptyVideoID  = errors.New("video id is empty")
	// ErrQuestionGone means the question a reply answers was reset or
	// evicted while the reply was being generated.
	ErrQuestionGone = errors.New("question no longer in history")
)

type history struct {
	turns []Turn
}

// Store maps video IDs to their ordered turn history.
type Store struct {
	maxTurns  int
	maxVideos int
	logger    *slog.Logger
	now       func() time.Time
	release   func(refs []string)

	mu     sync.Mutex
	videos map[string]*history
	order  []string // least recently switched first
	active string
	last   time.Time
}

// NewStore creates a store keeping at most maxTurns turns per video and
// maxVideos videos. Values below the minimum fall back to the defaults.
func NewStore(maxTurns, maxVideos int, logger *slog.Logger) *Store {
	if maxTurns < 3 {
		maxTurns = DefaultMaxTurns
	}
	if maxVideos < 1 {
		maxVideos = DefaultMaxVideos
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		maxTurns:  maxTurns,
		maxVideos: maxVideos,
		logger:    logger,
		now:       time.Now,
		videos:    make(map[string]*history),
	}
}

// SwitchToVideo makes videoID the active video, creating an empty history on
// first visit. The switched-to video becomes the most recently used; when
// more than maxVideos are tracked the least recently switched-to one is
// dropped.
func (s *Store) SwitchToVideo(videoID string) error {
	if videoID == "" {
		return ErrEmptyVideoID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.videos[videoID]; ok {
		s.touchLocked(videoID)
	} else {
		s.videos[videoID] = &history{}
		s.order = append(s.order, videoID)
		s.logger.Debug("conversation created", "video", videoID)
	}
	s.active = videoID

	for len(s.order) > s.maxVideos {
		oldest := s.order[0]
		s.order = s.order[1:]
		s.dropLocked(s.videos[oldest].turns)
		delete(s.videos, oldest)
		s.logger.Debug("conversation evicted", "video", oldest, "tracked", len(s.order))
	}
	return nil
}

// OnDrop registers fn to receive the audio refs of assistant turns that leave
// the store through eviction, Reset or ClearAll. fn runs with the store
// locked and must not call back into it.
func (s *Store) OnDrop(fn func(refs []string)) {
	s.mu.Lock()
	s.release = fn
	s.mu.Unlock()
}

func (s *Store) dropLocked(turns []Turn) {
	if s.release == nil {
		return
	}
	var refs []string
	for _, t := range turns {
		if t.AudioRef != "" {
			refs = append(refs, t.AudioRef)
		}
	}
	if len(refs) > 0 {
		s.release(refs)
	}
}

func (s *Store) touchLocked(videoID string) {
	for i, id := range s.order {
		if id == videoID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, videoID)
}

// ActiveVideo returns the active video ID, or "" if none.
func (s *Store) ActiveVideo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// AppendUserTurn records a question asked at position seconds into the
// active video. When the floored position differs from the last user turn's,
// a context turn carrying marker is inserted first.
func (s *Store) AppendUserTurn(text string, position float64, marker string) (Appended, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.videos[s.active]
	if h == nil {
		s.logger.Warn("user turn dropped", "reason", "no active video")
		return Appended{}, ErrNoActiveVideo
	}

	pos := Floor(position)
	out := Appended{VideoID: s.active}

	prev, ok := lastUserPosition(h.turns)
	if !ok || prev != pos {
		t := s.newTurnLocked(RoleContext, marker)
		t.Position = pos
		h.turns = append(h.turns, t)
		out.Marker = true
		out.IDs = append(out.IDs, t.ID)
		s.logger.Debug("context marker added", "video", s.active, "position", pos)
	}

	t := s.newTurnLocked(RoleUser, text)
	t.Position = pos
	h.turns = append(h.turns, t)
	out.IDs = append(out.IDs, t.ID)

	s.evictLocked(h)
	return out, nil
}

// AppendAssistantTurn records the reply to the question in q. The reply is
// dropped with ErrQuestionGone when that question is no longer stored.
func (s *Store) AppendAssistantTurn(q Appended, text, audioRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.videos[q.VideoID]
	if h == nil {
		s.logger.Warn("assistant turn dropped", "reason", "no conversation", "video", q.VideoID)
		return ErrNoActiveVideo
	}
	if len(q.IDs) == 0 || !h.hasTurn(q.IDs[len(q.IDs)-1]) {
		s.logger.Warn("assistant turn dropped", "reason", "question gone", "video", q.VideoID)
		return ErrQuestionGone
	}
	t := s.newTurnLocked(RoleAssistant, text)
	t.AudioRef = audioRef
	h.turns = append(h.turns, t)

	s.evictLocked(h)
	return nil
}

// Discard removes turns written by AppendUserTurn. Turns already evicted are
// ignored. It returns the number of turns removed.
func (s *Store) Discard(a Appended) int {
	if len(a.IDs) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.videos[a.VideoID]
	if h == nil {
		return 0
	}
	drop := make(map[uuid.UUID]bool, len(a.IDs))
	for _, id := range a.IDs {
		drop[id] = true
	}
	kept := h.turns[:0]
	for _, t := range h.turns {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	removed := len(h.turns) - len(kept)
	clear(h.turns[len(kept):])
	h.turns = kept
	return removed
}

// History returns a copy of the turns stored for videoID, oldest first.
func (s *Store) History(videoID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.videos[videoID]
	if h == nil || len(h.turns) == 0 {
		return nil
	}
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of turns stored for videoID.
func (s *Store) Len(videoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.videos[videoID]; h != nil {
		return len(h.turns)
	}
	return 0
}

// LastUserPosition returns the floored position of the most recent user
// turn for videoID.
func (s *Store) LastUserPosition(videoID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.videos[videoID]; h != nil {
		return lastUserPosition(h.turns)
	}
	return 0, false
}

// Reset clears one video's history, keeping it tracked. An empty videoID
// means the active video.
func (s *Store) Reset(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if videoID == "" {
		videoID = s.active
	}
	if h := s.videos[videoID]; h != nil {
		s.dropLocked(h.turns)
		h.turns = nil
		s.logger.Debug("conversation reset", "video", videoID)
	}
}

// ClearAll drops every video and the active pointer.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.videos {
		s.dropLocked(h.turns)
	}
	clear(s.videos)
	s.order = nil
	s.active = ""
}

// Summary describes every tracked video, least recently switched first.
func (s *Store) Summary() []VideoSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]VideoSummary, 0, len(s.order))
	for _, id := range s.order {
		sum := VideoSummary{VideoID: id, Current: id == s.active}
		turns := s.videos[id].turns
		sum.TotalTurns = len(turns)
		for _, t := range turns {
			switch t.Role {
			case RoleUser:
				sum.UserTurns++
			case RoleAssistant:
				sum.AssistantTurns++
			}
		}
		if n := len(turns); n > 0 {
			sum.LastActivity = turns[n-1].CreatedAt
		}
		out = append(out, sum)
	}
	return out
}

// newTurnLocked stamps a turn with a fresh ID and a CreatedAt strictly
// after every turn created before it.
func (s *Store) newTurnLocked(role Role, content string) Turn {
	now := s.now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return Turn{ID: uuid.New(), Role: role, Content: content, CreatedAt: now}
}

// evictLocked drops whole rounds from the front until the history fits. A
// round is an optional context turn, a user turn and the assistant turn that
// directly follows it. The trailing round is kept while it still waits for
// its answer.
func (s *Store) evictLocked(h *history) {
	for len(h.turns) > s.maxTurns {
		n := roundLen(h.turns)
		if n == len(h.turns) && h.turns[n-1].Role != RoleAssistant {
			return
		}
		s.dropLocked(h.turns[:n])
		clear(h.turns[:n])
		h.turns = h.turns[n:]
		s.logger.Debug("conversation round evicted", "turns", n, "remaining", len(h.turns))
	}
}

func (h *history) hasTurn(id uuid.UUID) bool {
	for _, t := range h.turns {
		if t.ID == id {
			return true
		}
	}
	return false
}

func roundLen(turns []Turn) int {
	i := 0
	if i < len(turns) && turns[i].Role == RoleContext {
		i++
	}
	if i < len(turns) && turns[i].Role == RoleUser {
		i++
	}
	if i < len(turns) && turns[i].Role == RoleAssistant {
		i++
	}
	if i == 0 {
		// Stray turn with no round around it.
		return 1
	}
	return i
}

func lastUserPosition(turns []Turn) (int, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Position, true
		}
	}
	return 0, false
}

// Floor converts a playback time to whole seconds.
func Floor(position float64) int {
	if math.IsNaN(position) || position < 0 {
		return 0
	}
	return int(math.Floor(position))
}
