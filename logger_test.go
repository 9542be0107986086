package colorscope

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestNopHandler(t *testing.T) {
	var h slog.Handler = nopHandler{}
	ctx := context.Background()
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(ctx, level) {
			t.Errorf("Enabled(%v) = true", level)
		}
	}
	if err := h.Handle(ctx, slog.Record{}); err != nil {
		t.Errorf("Handle = %v", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.Int("frame", 1)}).(nopHandler); !ok {
		t.Error("WithAttrs left the nop handler")
	}
	if _, ok := h.WithGroup("pass").(nopHandler); !ok {
		t.Error("WithGroup left the nop handler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() = nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("default logger is enabled")
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)
	if Logger() != custom {
		t.Fatal("Logger() is not the logger passed to SetLogger")
	}
	Logger().Debug("frame skipped", "reason", "no new frame")
	if !strings.Contains(buf.String(), "reason=\"no new frame\"") {
		t.Errorf("log output = %q", buf.String())
	}

	SetLogger(nil)
	if l := Logger(); l == nil || l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}

// loggingRenderer records the logger it receives.
type loggingRenderer struct {
	mu     sync.Mutex
	logger *slog.Logger
}

func (r *loggingRenderer) Execute(ctx context.Context, state *SharedState) error {
	<-ctx.Done()
	return nil
}

func (r *loggingRenderer) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

func (r *loggingRenderer) current() *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

func TestSetLoggerPropagatesToRenderer(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	r := &loggingRenderer{}
	propagateLogger(r)
	t.Cleanup(func() { forgetLogger(r) })

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	if r.current() != custom {
		t.Error("SetLogger did not propagate to renderer via loggerSetter")
	}
}

func TestPropagateLoggerSendsCurrentLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	r := &loggingRenderer{}
	propagateLogger(r)
	propagateLogger(r)
	t.Cleanup(func() { forgetLogger(r) })

	if r.current() != custom {
		t.Error("propagateLogger did not hand the current logger to the renderer")
	}

	sinksMu.Lock()
	n := 0
	for _, s := range sinks {
		if s == loggerSetter(r) {
			n++
		}
	}
	sinksMu.Unlock()
	if n != 1 {
		t.Errorf("renderer registered %d times, want 1", n)
	}
}

func TestForgetLoggerStopsPropagation(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	r := &loggingRenderer{}
	propagateLogger(r)
	forgetLogger(r)
	before := r.current()

	SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if r.current() != before {
		t.Error("forgotten renderer still received a logger")
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	const goroutines = 100

	// Concurrent readers.
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := Logger()
			if l == nil {
				t.Error("Logger() returned nil during concurrent access")
			}
			l.Info("concurrent info")
			l.Debug("concurrent read")
		}()
	}

	// Concurrent writers.
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}

	wg.Wait()
}
