// Package simlog provides the structured logger shared by every process in
// the simulator (the kernel, the event bus, machines, and the scheduler).
//
// It wires github.com/joeycumines/logiface to a log/slog handler via
// github.com/joeycumines/logiface-slog, so callers get fluent, typed log
// fields (Str, Int, Dur, Err, ...) instead of fmt.Sprintf'd strings, while
// still being free to point it at whatever slog.Handler suits their
// deployment (JSON, text, or a test handler that captures records).
package simlog

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the concrete logger type threaded through every simulator
// component. A nil *Logger is valid and discards all output, so components
// may be constructed without one for tests that don't care about logging.
type Logger = logiface.Logger[*logifaceslog.Event]

// Disabled is a logger that discards everything. It is the zero-value
// fallback used by every constructor that accepts an optional *Logger.
var Disabled = New(slog.NewTextHandler(os.Stderr, nil), logiface.LevelDisabled)

// New builds a Logger backed by handler, enabled at and above level.
func New(handler slog.Handler, level logiface.Level) *Logger {
	if handler == nil {
		panic("simlog: nil handler")
	}
	return logiface.New[*logifaceslog.Event](
		logifaceslog.NewLogger(handler, logifaceslog.WithLevel(level)),
	)
}

// NewJSON is a convenience constructor for a JSON handler writing to w,
// the common case for a research harness collecting logs alongside CSVs.
func NewJSON(w *os.File, level logiface.Level) *Logger {
	return New(slog.NewJSONHandler(w, nil), level)
}

// OrDisabled returns l, or Disabled if l is nil. Every component should
// call this once, at construction, rather than nil-checking on every
// log call.
func OrDisabled(l *Logger) *Logger {
	if l == nil {
		return Disabled
	}
	return l
}
