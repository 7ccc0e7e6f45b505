package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleContext is an injected note carrying the playback position and
	// the subtitles around it. It is replayed as a system message.
	RoleContext Role = "context"
)

// Turn is one entry in a video's conversation history.
type Turn struct {
	ID        uuid.UUID
	Role      Role
	Content   string
	CreatedAt time.Time
	// Position is the floored playback time in seconds. Set on user and
	// context turns.
	Position int
	// AudioRef points into an AudioCache for assistant turns with audio.
	AudioRef string
}

// Appended describes the turns written by one AppendUserTurn call, so they
// can be discarded if the query fails.
type Appended struct {
	VideoID string
	Marker  bool
	IDs     []uuid.UUID
}

// VideoSummary is a per-video digest of the stored history.
type VideoSummary struct {
	VideoID        string    `json:"video_id"`
	TotalTurns     int       `json:"total_turns"`
	UserTurns      int       `json:"user_turns"`
	AssistantTurns int       `json:"assistant_turns"`
	LastActivity   time.Time `json:"last_activity,omitzero"`
	Current        bool      `json:"current"`
}
