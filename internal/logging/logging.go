package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Options selects the process logger's level and output.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

var (
	disabled atomic.Bool
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	logger.Store(slog.New(slog.DiscardHandler))
}

// New builds a logger from opts. Text output is rendered by charmbracelet/log.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		cl := charmlog.NewWithOptions(out, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           charmLevel(level),
		})
		h = cl
	case "json":
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", opts.Format)
	}
	return slog.New(h), nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l <= slog.LevelInfo:
		return charmlog.InfoLevel
	case l <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}

// SetDefault installs l as the process logger returned by L.
func SetDefault(l *slog.Logger) {
	if l == nil {
		return
	}
	logger.Store(l)
	slog.SetDefault(l)
}

// L returns the process logger, or a discarding logger while disabled.
func L() *slog.Logger {
	if disabled.Load() {
		return slog.New(slog.DiscardHandler)
	}
	return logger.Load()
}

// Disable turns off all logging
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on
func Enable() {
	disabled.Store(false)
}

// Component returns l (or the process logger when nil) tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = L()
	}
	return l.With("component", name)
}
