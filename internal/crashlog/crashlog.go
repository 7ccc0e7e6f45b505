// Package crashlog records recovered panics and unexpected errors in the
// SQLite event log under the "crash" event name.
package crashlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/logging"
)

// EventName is the event log name used for crash records.
const EventName = "crash"

// Logger persists crash records to the event log.
// Safe for concurrent use from multiple goroutines.
type Logger struct {
	store *db.Store
	mu    sync.Mutex
}

var (
	global   *Logger
	globalMu sync.Mutex
)

// Init sets up the global crash logger. Call once at startup; nil disables
// persistence.
func Init(store *db.Store) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if store == nil {
		global = nil
		return
	}
	global = &Logger{store: store}
}

// LogPanic records a recovered panic with a stack trace.
// Safe to call even if Init() was never called (only logs then).
func LogPanic(module string, r any, ctx map[string]string) {
	msg := fmt.Sprintf("%v", r)
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	stackStr := string(stack[:n])

	logging.L().Error("panic recovered", "module", module, "panic", msg, "stack", stackStr)
	insert("panic", module, msg, stackStr, ctx)
}

// LogError records an error with optional context.
func LogError(module string, err error, ctx map[string]string) {
	if err == nil {
		return
	}
	logging.L().Error("crash log", "module", module, "error", err)
	insert("error", module, err.Error(), "", ctx)
}

// Recover is deferred at the top of goroutines that must not take the
// process down.
func Recover(module string, ctx map[string]string) {
	if r := recover(); r != nil {
		LogPanic(module, r, ctx)
	}
}

func insert(level, module, message, stacktrace string, ctx map[string]string) {
	globalMu.Lock()
	l := global
	globalMu.Unlock()
	if l == nil {
		return
	}
	l.insert(level, module, message, stacktrace, ctx)
}

type record struct {
	Level      string            `json:"level"`
	Module     string            `json:"module"`
	Message    string            `json:"message"`
	Stacktrace string            `json:"stacktrace,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

func (l *Logger) insert(level, module, message, stacktrace string, ctx map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(record{Level: level, Module: module, Message: message, Stacktrace: stacktrace, Context: ctx})
	if err != nil {
		return
	}
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.InsertEvent(c, EventName, string(b), time.Now()); err != nil {
		slog.Default().Warn("crash log write failed", "error", err)
	}
}
