package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/conversation"
	"github.com/neboloop/ytvoice/internal/subtitles"
)

func testVideo(pos float64) VideoContext {
	return VideoContext{
		VideoID:        "dQw4w9WgXcQ",
		Title:          "Go Concurrency Patterns",
		FullTranscript: "welcome to the talk about channels and goroutines",
		Excerpt:        "channels and goroutines",
		Position:       pos,
	}
}

func TestStaticMessage(t *testing.T) {
	b := NewBuilder("")
	want := DefaultInstructions + "\n\n" +
		"Video: Go Concurrency Patterns\n" +
		"Video ID: dQw4w9WgXcQ\n\n" +
		"Full Transcript:\n" +
		"welcome to the talk about channels and goroutines\n\n" +
		DefaultGuidance
	assert.Equal(t, want, b.StaticMessage(testVideo(10)))

	empty := b.StaticMessage(VideoContext{VideoID: "x"})
	assert.Contains(t, empty, "Video: Unknown Title\n")
	assert.Contains(t, empty, "Full Transcript:\nLoading subtitles...")
}

func TestStaticMessage_CustomPrompt(t *testing.T) {
	b := NewBuilder("  Answer like a pirate.  ")
	msg := b.StaticMessage(testVideo(0))
	assert.True(t, strings.HasPrefix(msg, "Answer like a pirate.\n\nVideo: "))
	assert.NotContains(t, msg, DefaultGuidance)
}

func TestStaticMessage_StableAcrossCalls(t *testing.T) {
	b := NewBuilder("")
	first := b.Build(testVideo(12.2), nil, "what is a channel?")
	// Same video, later position, more history: the static prefix must not move.
	history := []conversation.Turn{
		{Role: conversation.RoleContext, Content: "note", Position: 12},
		{Role: conversation.RoleUser, Content: "what is a channel?", Position: 12},
		{Role: conversation.RoleAssistant, Content: "a typed conduit"},
	}
	v := testVideo(95.7)
	v.Excerpt = "something else entirely"
	second := b.Build(v, history, "and a goroutine?")

	assert.Equal(t, first[0], second[0])
}

func TestPositionNote(t *testing.T) {
	assert.Equal(t,
		"Current video playback time: 12 seconds\n\nSubtitle content around current time position:\nchannels and goroutines",
		PositionNote(testVideo(12.9)))

	v := testVideo(3)
	v.Excerpt = "  "
	assert.True(t, strings.HasSuffix(PositionNote(v), "\nNo relevant subtitles"))
}

func TestBuild_Layout(t *testing.T) {
	b := NewBuilder("")
	now := time.Now()
	history := []conversation.Turn{
		{Role: conversation.RoleContext, Content: "note@5", Position: 5, CreatedAt: now},
		{Role: conversation.RoleUser, Content: "q1", Position: 5},
		{Role: conversation.RoleAssistant, Content: "a1"},
		{Role: conversation.RoleUser, Content: "q2", Position: 5},
		{Role: conversation.RoleAssistant, Content: "a2"},
	}

	msgs := b.Build(testVideo(30), history, "q3")
	roles := make([]ai.Role, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	assert.Equal(t, []ai.Role{
		ai.RoleSystem,
		ai.RoleSystem, ai.RoleUser, ai.RoleAssistant,
		ai.RoleUser, ai.RoleAssistant,
		ai.RoleSystem, ai.RoleUser,
	}, roles)
	assert.Equal(t, "note@5", msgs[1].Content)
	assert.Equal(t, PositionNote(testVideo(30)), msgs[6].Content)
	assert.Equal(t, "q3", msgs[7].Content)

	// Same floored second as the last question: no note.
	msgs = b.Build(testVideo(5.8), history, "q3")
	require.Len(t, msgs, 7)
	assert.Equal(t, ai.RoleAssistant, msgs[5].Role)
	assert.Equal(t, ai.RoleUser, msgs[6].Role)
}

func TestBuild_FirstQuestionGetsNote(t *testing.T) {
	msgs := NewBuilder("").Build(testVideo(0), nil, "hi")
	require.Len(t, msgs, 3)
	assert.Equal(t, ai.RoleSystem, msgs[1].Role)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Current video playback time: 0 seconds"))
}

func TestBuild_MatchesStoredHistory(t *testing.T) {
	// Building with the note and then storing the same note must give a
	// replay identical to what was sent.
	b := NewBuilder("")
	store := conversation.NewStore(20, 10, nil)
	require.NoError(t, store.SwitchToVideo("dQw4w9WgXcQ"))

	v := testVideo(42)
	sent := b.Build(v, store.History("dQw4w9WgXcQ"), "q1")
	asked, err := store.AppendUserTurn("q1", v.Position, PositionNote(v))
	require.NoError(t, err)
	require.NoError(t, store.AppendAssistantTurn(asked, "a1", ""))

	next := b.Build(v, store.History("dQw4w9WgXcQ"), "q2")
	assert.Equal(t, sent, next[:len(sent)])
	assert.Len(t, next, len(sent)+2)
}

func TestExcerpt(t *testing.T) {
	entries := []subtitles.Entry{
		{Start: 20, Text: "future cue not yet spoken"},
		{Start: 0, Text: "one two three four five"},
		{Start: 5, Text: "six seven eight"},
		{Start: 10, Text: "nine ten"},
		{Start: 12, Text: ""},
	}

	assert.Equal(t, "one two three four five six seven eight nine ten", Excerpt(entries, 15, 28))
	// Stop before a cue that would overflow the limit.
	assert.Equal(t, "six seven eight nine ten", Excerpt(entries, 15, 6))
	// Stop once the limit is reached exactly.
	assert.Equal(t, "six seven eight nine ten", Excerpt(entries, 15, 5))
	// The newest cue is kept even when it alone exceeds the limit.
	assert.Equal(t, "one two three four five", Excerpt(entries, 4, 2))
	assert.Equal(t, "", Excerpt(entries, -1, 28))
	assert.Equal(t, "", Excerpt(nil, 10, 28))
}

func TestNewVideoContext(t *testing.T) {
	track := &subtitles.Track{
		FullTranscript: "a b c",
		Entries:        []subtitles.Entry{{Start: 1, Text: "a b"}, {Start: 3, Text: "c"}},
	}
	v := NewVideoContext("vid", "Title", track, 3.5, 28)
	assert.Equal(t, "a b c", v.FullTranscript)
	assert.Equal(t, "a b c", v.Excerpt)

	v = NewVideoContext("vid", "", nil, 3.5, 28)
	assert.Empty(t, v.Excerpt)
	assert.Equal(t, 3.5, v.Position)
}
