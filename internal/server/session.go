package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neboloop/ytvoice/internal/assistant"
	"github.com/neboloop/ytvoice/internal/conversation"
	"github.com/neboloop/ytvoice/internal/crashlog"
	"github.com/neboloop/ytvoice/internal/subtitles"
	"github.com/neboloop/ytvoice/internal/voice"
)

const (
	voiceWriteWait  = 10 * time.Second
	voicePongWait   = 60 * time.Second
	voicePingPeriod = (voicePongWait * 9) / 10
	voiceMaxMessage = 4 << 20
)

// ControlMessage is a JSON text frame exchanged alongside binary audio.
//
// Client to server: "context" (video id, title, position, optional
// subtitles), "ask", "cancel", "reset", "replay", "history",
// "playback_done". Server to client: "ready", "mic", "status", "audio",
// "answer", "history", "error".
type ControlMessage struct {
	Type string `json:"type"`

	VideoID   string           `json:"video_id,omitempty"`
	Title     string           `json:"title,omitempty"`
	Position  *float64         `json:"position,omitempty"`
	Subtitles *subtitles.Track `json:"subtitles,omitempty"`

	Text  string `json:"text,omitempty"`  // status, error or playback failure text
	Phase string `json:"phase,omitempty"` // status phase
	State string `json:"state,omitempty"` // "open" or "closed" for mic

	Question string         `json:"question,omitempty"`
	Answer   string         `json:"answer,omitempty"`
	Timings  *timingMessage `json:"timings,omitempty"`
	Fallback bool           `json:"fallback,omitempty"`

	Videos []conversation.VideoSummary `json:"videos,omitempty"`

	SampleRate   int    `json:"sample_rate,omitempty"`
	FrameSamples int    `json:"frame_samples,omitempty"`
	Format       string `json:"format,omitempty"` // reply audio container
	Session      string `json:"session,omitempty"`
}

type timingMessage struct {
	RecordingMS     int64 `json:"recording_ms"`
	TranscriptionMS int64 `json:"transcription_ms"`
	CompletionMS    int64 `json:"completion_ms"`
	PlaybackMS      int64 `json:"playback_ms"`
	TotalMS         int64 `json:"total_ms"`
}

func newTimingMessage(t assistant.Timings) *timingMessage {
	return &timingMessage{
		RecordingMS:     t.Recording.Milliseconds(),
		TranscriptionMS: t.Transcription.Milliseconds(),
		CompletionMS:    t.Completion.Milliseconds(),
		PlaybackMS:      t.Playback.Milliseconds(),
		TotalMS:         t.Total.Milliseconds(),
	}
}

// voiceHandler upgrades to a voice session WebSocket.
func voiceHandler(factory AssistantFactory, format voice.Format, allowed func(string) bool, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return allowed(r.Header.Get("Origin"))
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("voice upgrade failed", "error", err)
			return
		}
		s := newSession(conn, format, logger)
		a, err := factory(s.mic, s.player, s.logger)
		if err != nil {
			s.logger.Error("assistant setup failed", "error", err)
			s.send(ControlMessage{Type: "error", Text: err.Error()})
			conn.Close()
			return
		}
		s.assistant = a
		s.serve(r.Context())
	}
}

// session is one browser connection with its own assistant, conversation
// history and audio devices.
type session struct {
	id     string
	conn   *websocket.Conn
	format voice.Format
	logger *slog.Logger

	writeMu sync.Mutex

	mic       *socketMicrophone
	player    *socketPlayer
	assistant Assistant
	stop      chan struct{}

	mu      sync.Mutex
	video   assistant.Query
	cancel  context.CancelFunc
	queries sync.WaitGroup
}

func newSession(conn *websocket.Conn, format voice.Format, logger *slog.Logger) *session {
	s := &session{
		id:     uuid.NewString(),
		conn:   conn,
		format: format,
		stop:   make(chan struct{}),
	}
	s.logger = logger.With("session", s.id)
	s.mic = newSocketMicrophone(func(open bool) {
		state := "closed"
		if open {
			state = "open"
		}
		s.send(ControlMessage{Type: "mic", State: state})
	})
	s.player = newSocketPlayer(s.sendAudio, s.stop)
	return s
}

// serve runs the session until the connection closes or ctx ends.
func (s *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.logger.Info("voice session opened", "remote", s.conn.RemoteAddr().String())

	s.send(ControlMessage{
		Type:         "ready",
		Session:      s.id,
		SampleRate:   s.format.SampleRate,
		FrameSamples: s.format.FrameSamples,
	})

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		s.pingLoop(ctx)
	}()

	s.readLoop(ctx)

	cancel()
	close(s.stop)
	s.mic.shutdown()
	s.queries.Wait()
	<-pingDone
	if err := s.assistant.Close(); err != nil {
		s.logger.Warn("assistant close failed", "error", err)
	}
	s.conn.Close()
	s.logger.Info("voice session closed")
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(voiceMaxMessage)
	s.conn.SetReadDeadline(time.Now().Add(voicePongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(voicePongWait))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("voice read error", "error", err)
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.mic.feed(data)
		case websocket.TextMessage:
			s.handleControl(ctx, data)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(voicePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) handleControl(ctx context.Context, data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.send(ControlMessage{Type: "error", Text: "malformed control message"})
		return
	}

	switch msg.Type {
	case "context":
		s.updateContext(msg)
	case "ask":
		s.updateContext(msg)
		s.ask(ctx)
	case "cancel":
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
	case "reset":
		s.mu.Lock()
		running := s.cancel != nil
		s.mu.Unlock()
		if running {
			s.send(ControlMessage{Type: "error", Text: assistant.ErrBusy.Error()})
			return
		}
		if err := s.assistant.Reset(msg.VideoID); err != nil {
			s.send(ControlMessage{Type: "error", Text: err.Error()})
			return
		}
		s.sendHistory()
	case "replay":
		s.replay(ctx)
	case "history":
		s.sendHistory()
	case "playback_done":
		s.player.finished(msg.Text)
	default:
		s.send(ControlMessage{Type: "error", Text: "unknown message type " + msg.Type})
	}
}

// updateContext merges the video fields present in msg.
func (s *session) updateContext(msg ControlMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.VideoID != "" && msg.VideoID != s.video.VideoID {
		s.video = assistant.Query{VideoID: msg.VideoID}
	}
	if msg.Title != "" {
		s.video.Title = msg.Title
	}
	if msg.Position != nil {
		s.video.Position = *msg.Position
	}
	if msg.Subtitles != nil {
		s.video.Track = msg.Subtitles
	}
}

// ask starts a query in the background so the read loop keeps feeding the
// microphone and receiving acknowledgements.
func (s *session) ask(ctx context.Context) {
	s.mu.Lock()
	q := s.video
	switch {
	case q.VideoID == "":
		s.mu.Unlock()
		s.send(ControlMessage{Type: "error", Text: "no video context"})
		return
	case s.cancel != nil:
		s.mu.Unlock()
		s.status("Error: "+assistant.ErrBusy.Error(), assistant.PhaseError)
		return
	}
	qctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.queries.Add(1)
	go func() {
		defer s.queries.Done()
		defer crashlog.Recover("voice-session", map[string]string{"session": s.id, "video": q.VideoID})
		defer func() {
			s.mu.Lock()
			s.cancel = nil
			s.mu.Unlock()
			cancel()
		}()

		res, err := s.assistant.Ask(qctx, q, s.status)
		if res == nil || res.Answer == "" {
			s.logger.Debug("query ended without an answer", "error", err)
			return
		}
		s.send(ControlMessage{
			Type:     "answer",
			VideoID:  q.VideoID,
			Question: res.Question,
			Answer:   res.Answer,
			Timings:  newTimingMessage(res.Timings),
			Fallback: res.UsedFallback,
		})
	}()
}

func (s *session) replay(ctx context.Context) {
	s.queries.Add(1)
	go func() {
		defer s.queries.Done()
		defer crashlog.Recover("voice-session", map[string]string{"session": s.id})
		if err := s.assistant.Replay(ctx); err != nil {
			s.send(ControlMessage{Type: "error", Text: err.Error()})
		}
	}()
}

func (s *session) status(message string, phase assistant.Phase) {
	s.send(ControlMessage{Type: "status", Text: message, Phase: string(phase)})
}

func (s *session) sendHistory() {
	s.send(ControlMessage{Type: "history", Videos: s.assistant.Summary()})
}

// send writes a control frame. It is safe from any goroutine.
func (s *session) send(msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// sendAudio announces and writes one reply clip.
func (s *session) sendAudio(audio []byte) error {
	if err := s.send(ControlMessage{Type: "audio", Format: "wav"}); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}
