package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/neboloop/ytvoice/internal/httputil"
	"github.com/neboloop/ytvoice/internal/subtitles"
)

type subtitleHandler struct {
	store  SubtitleStore
	logger *slog.Logger
}

type subtitleSummary struct {
	VideoID   string `json:"video_id"`
	Source    string `json:"source"`
	FetchedAt string `json:"fetched_at"`
}

func (h *subtitleHandler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list subtitles", "error", err)
		httputil.InternalError(w, "")
		return
	}
	if limit := httputil.QueryInt(r, "limit", 0); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]subtitleSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, subtitleSummary{
			VideoID:   row.VideoID,
			Source:    row.Source,
			FetchedAt: row.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	httputil.OkJSON(w, map[string]any{"subtitles": out})
}

func (h *subtitleHandler) get(w http.ResponseWriter, r *http.Request) {
	videoID := httputil.PathVar(r, "videoID")
	if !subtitles.ValidVideoID(videoID) {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid video id")
		return
	}
	track, err := h.store.Fetch(r.Context(), videoID)
	switch {
	case errors.Is(err, subtitles.ErrNotFound):
		httputil.NotFound(w, "no subtitles for "+videoID)
		return
	case err != nil:
		h.logger.Error("fetch subtitles", "video", videoID, "error", err)
		httputil.InternalError(w, "")
		return
	}
	httputil.OkJSON(w, track)
}

// upload accepts an SRT, timedtext XML or {fullTranscript, timestamps} JSON
// body. The format query parameter overrides detection.
func (h *subtitleHandler) upload(w http.ResponseWriter, r *http.Request) {
	videoID := httputil.PathVar(r, "videoID")
	if !subtitles.ValidVideoID(videoID) {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid video id")
		return
	}
	body, err := httputil.ReadBody(r)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		httputil.ErrorWithCode(w, code, err.Error())
		return
	}

	format := subtitles.Format(httputil.QueryString(r, "format", ""))
	track, err := h.store.Import(r.Context(), videoID, format, body)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"video_id": videoID,
		"source":   track.Source,
		"cues":     len(track.Entries),
	})
}

func (h *subtitleHandler) delete(w http.ResponseWriter, r *http.Request) {
	videoID := httputil.PathVar(r, "videoID")
	if err := h.store.Delete(r.Context(), videoID); err != nil {
		h.logger.Error("delete subtitles", "video", videoID, "error", err)
		httputil.InternalError(w, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
