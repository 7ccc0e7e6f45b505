// Package prompt assembles the message list for a completion call.
//
// The list is ordered so the longest possible prefix stays byte-identical
// from one question to the next about the same video:
//
//	system     instructions, title, video id, full transcript   (static)
//	...        stored history, context notes as system messages
//	system     position note, only when the position moved
//	user       the new question
//
// Anything that changes per call goes after the static message, never in it.
package prompt

import (
	"fmt"
	"strings"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/conversation"
)

const (
	// DefaultInstructions opens the static system message.
	DefaultInstructions = "You are a YouTube video assistant that answers questions based on video subtitle content."

	// DefaultGuidance closes the static system message.
	DefaultGuidance = "Please provide concise answers (within 30 words) since your response will be converted to speech. " +
		"Focus on content relevant to the current time position. " +
		"When asked to repeat what was just said in the video, provide word-by-word accurate repetition without omitting details."

	noSubtitles     = "No relevant subtitles"
	unknownTitle    = "Unknown Title"
	loadingSubtitle = "Loading subtitles..."
)

// VideoContext is the per-query view of the video being watched.
type VideoContext struct {
	VideoID        string
	Title          string
	FullTranscript string
	// Excerpt is the subtitle text just before Position.
	Excerpt  string
	Position float64 // seconds
}

// Builder renders prompts. The zero value uses the default instructions.
type Builder struct {
	Instructions string
	Guidance     string
}

// NewBuilder returns a Builder. A non-empty custom prompt replaces both the
// default instructions and the closing guidance.
func NewBuilder(custom string) *Builder {
	if c := strings.TrimSpace(custom); c != "" {
		return &Builder{Instructions: c}
	}
	return &Builder{Instructions: DefaultInstructions, Guidance: DefaultGuidance}
}

// StaticMessage renders the leading system message. It depends only on the
// video's id, title and transcript.
func (b *Builder) StaticMessage(v VideoContext) string {
	instructions := b.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	title := v.Title
	if title == "" {
		title = unknownTitle
	}
	transcript := v.FullTranscript
	if transcript == "" {
		transcript = loadingSubtitle
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	fmt.Fprintf(&sb, "\n\nVideo: %s\nVideo ID: %s\n\nFull Transcript:\n%s", title, v.VideoID, transcript)
	if b.Guidance != "" {
		sb.WriteString("\n\n")
		sb.WriteString(b.Guidance)
	}
	return sb.String()
}

// PositionNote renders the context note for v. The same text is stored as
// the context turn, so later prompts replay it unchanged.
func PositionNote(v VideoContext) string {
	excerpt := strings.TrimSpace(v.Excerpt)
	if excerpt == "" {
		excerpt = noSubtitles
	}
	return fmt.Sprintf("Current video playback time: %d seconds\n\nSubtitle content around current time position:\n%s",
		conversation.Floor(v.Position), excerpt)
}

// NeedsPositionNote reports whether a question at position needs a context
// note given the stored history: true unless the last user turn was asked
// at the same floored second.
func NeedsPositionNote(history []conversation.Turn, position float64) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser {
			return history[i].Position != conversation.Floor(position)
		}
	}
	return true
}

// Build returns the messages for question asked about v with the given
// stored history.
func (b *Builder) Build(v VideoContext, history []conversation.Turn, question string) []ai.Message {
	msgs := make([]ai.Message, 0, len(history)+3)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: b.StaticMessage(v)})

	for _, t := range history {
		switch t.Role {
		case conversation.RoleContext:
			msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: t.Content})
		case conversation.RoleUser:
			msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: t.Content})
		case conversation.RoleAssistant:
			msgs = append(msgs, ai.Message{Role: ai.RoleAssistant, Content: t.Content})
		}
	}

	if NeedsPositionNote(history, v.Position) {
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: PositionNote(v)})
	}
	return append(msgs, ai.Message{Role: ai.RoleUser, Content: question})
}
