package colorscope

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler discards every record. Enabled is false at all levels, so
// callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// sinks are renderers that receive the logger when it changes.
var (
	sinksMu sync.Mutex
	sinks   []loggerSetter
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for colorscope and all its sub-packages.
// By default, colorscope produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by colorscope:
//   - [slog.LevelDebug]: per-frame diagnostics, skipped frames, pipeline fallbacks
//   - [slog.LevelInfo]: lifecycle events (adapter selected, draw strategy chosen)
//   - [slog.LevelWarn]: non-fatal issues (resource release errors)
//   - [slog.LevelError]: shader compiler diagnostics
//
// Example:
//
//	colorscope.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.Lock()
	targets := append([]loggerSetter(nil), sinks...)
	sinksMu.Unlock()
	for _, s := range targets {
		s.SetLogger(l)
	}
}

// Logger returns the current logger used by colorscope.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by renderers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the current logger to r if it accepts one and
// keeps it registered for later SetLogger calls.
func propagateLogger(r Renderer) {
	ls, ok := r.(loggerSetter)
	if !ok {
		return
	}
	sinksMu.Lock()
	registered := false
	for _, s := range sinks {
		if s == ls {
			registered = true
			break
		}
	}
	if !registered {
		sinks = append(sinks, ls)
	}
	sinksMu.Unlock()
	ls.SetLogger(Logger())
}

// forgetLogger removes r from the propagation list.
func forgetLogger(r Renderer) {
	ls, ok := r.(loggerSetter)
	if !ok {
		return
	}
	sinksMu.Lock()
	defer sinksMu.Unlock()
	for i, s := range sinks {
		if s == ls {
			sinks = append(sinks[:i], sinks[i+1:]...)
			return
		}
	}
}
