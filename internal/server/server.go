// Package server exposes the assistant to a browser page over HTTP: a
// WebSocket carrying microphone audio, status updates and reply audio, and
// a small JSON API for subtitle uploads.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/neboloop/ytvoice/internal/assistant"
	"github.com/neboloop/ytvoice/internal/conversation"
	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/httputil"
	"github.com/neboloop/ytvoice/internal/subtitles"
	"github.com/neboloop/ytvoice/internal/voice"
)

// Assistant is the per-connection pipeline driven by a voice session.
type Assistant interface {
	Ask(ctx context.Context, q assistant.Query, status assistant.StatusFunc) (*assistant.Result, error)
	Replay(ctx context.Context) error
	Reset(videoID string) error
	Summary() []conversation.VideoSummary
	Close() error
}

// AssistantFactory builds the pipeline for one connection around its
// microphone and player.
type AssistantFactory func(mic voice.Microphone, player voice.Player, logger *slog.Logger) (Assistant, error)

// SubtitleStore is the subtitle cache behind the upload API.
type SubtitleStore interface {
	Fetch(ctx context.Context, videoID string) (*subtitles.Track, error)
	Import(ctx context.Context, videoID string, format subtitles.Format, data []byte) (*subtitles.Track, error)
	Delete(ctx context.Context, videoID string) error
	List(ctx context.Context) ([]db.SubtitleRow, error)
}

// Options configure the HTTP surface.
type Options struct {
	// AllowedOrigins are browser origins accepted in addition to localhost,
	// e.g. "chrome-extension://<id>" or "https://www.youtube.com".
	AllowedOrigins []string
	Format         voice.Format
	Logger         *slog.Logger
}

// Deps are the collaborators behind the routes. Subtitles may be nil.
type Deps struct {
	NewAssistant AssistantFactory
	Subtitles    SubtitleStore
	Version      string
}

// NewRouter returns the HTTP handler.
func NewRouter(deps Deps, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")
	if opts.Format.SampleRate == 0 {
		opts.Format = voice.DefaultFormat
	}
	origins := originChecker(opts.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(origins))

	r.Get("/health", healthHandler(deps.Version))

	if deps.NewAssistant != nil {
		r.Get("/ws/voice", voiceHandler(deps.NewAssistant, opts.Format, origins, logger))
	}

	if deps.Subtitles != nil {
		h := &subtitleHandler{store: deps.Subtitles, logger: logger}
		r.Route("/v1/subtitles", func(r chi.Router) {
			r.Get("/", h.list)
			r.Get("/{videoID}", h.get)
			r.Post("/{videoID}", h.upload)
			r.Delete("/{videoID}", h.delete)
		})
	}
	return r
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, map[string]string{"status": "ok", "version": version})
	}
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	// No ReadTimeout/WriteTimeout: they would cut hijacked WebSocket
	// connections. Keepalive is done with ping/pong in the session.
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("server ready", "addr", "http://"+ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// originChecker accepts requests with no Origin, localhost origins, and the
// configured extra origins.
func originChecker(allowed []string) func(string) bool {
	return func(origin string) bool {
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		return isLocalhostOrigin(origin)
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func corsMiddleware(allowed func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
