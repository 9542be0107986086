//go:build !nogpu

package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// slogger returns the current package logger. Device and frame messages
// go through it from the render goroutine only; resource release
// warnings may come from any goroutine.
func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger updates the package logger. Records carry a "subsystem=gpu"
// attribute so they can be told apart from pass diagnostics.
func SetLogger(l *slog.Logger) {
	if l == nil {
		loggerPtr.Store(slog.New(nopHandler{}))
		return
	}
	loggerPtr.Store(l.With("subsystem", "gpu"))
}
