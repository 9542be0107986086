//go:build !nogpu

package pass

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
)

// newTestExecutor returns an executor over src whose skip sleep
// deactivates shared after stopAfter skips.
func newTestExecutor(t *testing.T, src *scriptedSource, shared *colorscope.SharedState, stopAfter int) *Executor {
	t.Helper()
	ctx := newTestContext(t, false)
	capturer, err := gpu.NewCapturer(ctx.Device(), ctx.Heap(), src)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	t.Cleanup(func() { _ = capturer.Close() })

	e, err := NewExecutor(ExecutorConfig{
		Context:  ctx,
		Capturer: capturer,
		Window:   gpucontext.NullWindowProvider{W: 64, H: 64},
		Compiler: &stubCompiler{},
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	t.Cleanup(e.Close)

	skips := 0
	e.sleep = func(d time.Duration) {
		if d != FrameSkipSleep {
			t.Errorf("sleep(%v), want %v", d, FrameSkipSleep)
		}
		skips++
		if skips >= stopAfter {
			shared.SetActive(false)
		}
	}
	return e
}

func TestExecutorRendersFrames(t *testing.T) {
	st := testState()
	st.View = colorscope.ViewMode{Kind: colorscope.ViewSaturation}
	st.Histogram = colorscope.HistogramRGB
	st.ColorCloud = colorscope.CloudIn(colorscope.ColorSpaceYUV)
	shared := colorscope.NewSharedState(st)

	// Three frames, one frame without updates, then timeouts.
	src := &scriptedSource{width: 64, height: 64, script: []uint32{1, 2, 0, 1}}
	e := newTestExecutor(t, src, shared, 2)

	if err := e.Execute(context.Background(), shared); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if e.Frames() != 3 {
		t.Errorf("frames = %d, want 3", e.Frames())
	}
	if e.Skipped() != 2 {
		t.Errorf("skipped = %d, want 2", e.Skipped())
	}
	if e.Strategy() != StrategyIndirect {
		t.Errorf("strategy = %s", e.Strategy())
	}
}

func TestExecutorSkipsEmptyRect(t *testing.T) {
	st := testState()
	st.Rect = image.Rect(100, 100, 200, 200)
	shared := colorscope.NewSharedState(st)
	src := &scriptedSource{width: 64, height: 64, script: []uint32{1}}
	e := newTestExecutor(t, src, shared, 3)

	if err := e.Execute(context.Background(), shared); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if e.Frames() != 0 || e.Skipped() != 3 {
		t.Errorf("frames, skipped = %d, %d, want 0, 3", e.Frames(), e.Skipped())
	}
	if src.acquired != 0 {
		t.Errorf("acquired %d frames for an empty rectangle", src.acquired)
	}
}

func TestExecutorAcquireError(t *testing.T) {
	shared := colorscope.NewSharedState(testState())
	lost := errors.New("access lost")
	src := &scriptedSource{width: 64, height: 64, fail: lost}
	e := newTestExecutor(t, src, shared, 1)

	if err := e.Execute(context.Background(), shared); !errors.Is(err, lost) {
		t.Fatalf("Execute: err = %v, want %v", err, lost)
	}
}

func TestExecutorStops(t *testing.T) {
	src := &scriptedSource{width: 64, height: 64, script: []uint32{1}}

	t.Run("inactive", func(t *testing.T) {
		st := testState()
		st.Active = false
		shared := colorscope.NewSharedState(st)
		e := newTestExecutor(t, src, shared, 1)
		if err := e.Execute(context.Background(), shared); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if e.Frames() != 0 {
			t.Errorf("frames = %d, want 0", e.Frames())
		}
	})

	t.Run("canceled", func(t *testing.T) {
		shared := colorscope.NewSharedState(testState())
		e := newTestExecutor(t, src, shared, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := e.Execute(ctx, shared); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !shared.Active() {
			t.Error("Execute deactivated the shared state")
		}
	})
}

func TestNewExecutorErrors(t *testing.T) {
	if _, err := NewExecutor(ExecutorConfig{}); !errors.Is(err, gpu.ErrNilDevice) {
		t.Errorf("NewExecutor without context: err = %v", err)
	}
	ctx := newTestContext(t, false)
	if _, err := NewExecutor(ExecutorConfig{Context: ctx}); err == nil {
		t.Error("NewExecutor without capturer succeeded")
	}
}

func TestClampRect(t *testing.T) {
	tests := []struct {
		name             string
		rect             image.Rectangle
		clientW, clientH int
		want             image.Rectangle
	}{
		{"inside", image.Rect(10, 10, 50, 40), 100, 100, image.Rect(10, 10, 50, 40)},
		{"capture edge", image.Rect(100, 100, 300, 300), 500, 500, image.Rect(100, 100, 256, 256)},
		{"client size", image.Rect(0, 0, 200, 200), 64, 32, image.Rect(0, 0, 64, 32)},
		{"reversed", image.Rect(50, 40, 10, 10), 100, 100, image.Rect(10, 10, 50, 40)},
		{"outside", image.Rect(300, 300, 400, 400), 100, 100, image.Rectangle{}},
		{"minimized", image.Rect(0, 0, 10, 10), 0, 0, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampRect(tt.rect, tt.clientW, tt.clientH, 256, 256)
			if got.Empty() && tt.want.Empty() {
				return
			}
			if got != tt.want {
				t.Errorf("ClampRect = %v, want %v", got, tt.want)
			}
		})
	}
}
