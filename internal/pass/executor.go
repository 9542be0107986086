//go:build !nogpu

package pass

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
)

// FrameSkipSleep is how long the loop sleeps when there is nothing to
// render: no new frame, or an empty capture rectangle.
const FrameSkipSleep = time.Millisecond

// cloudClear darkens the screen behind the color cloud.
var cloudClear = gputypes.Color{A: 0.25}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Context  *gpu.Context
	Capturer *gpu.Capturer
	// Window reports the client size each frame. Nil uses the capture
	// size.
	Window gpucontext.WindowProvider
	// Compiler builds the pass shaders. Nil compiles the embedded WGSL
	// to SPIR-V.
	Compiler Compiler
}

// Executor is the per-frame orchestrator. It implements
// colorscope.Renderer: every iteration snapshots the shared state,
// captures a frame, records the enabled passes and presents.
type Executor struct {
	ctx      *gpu.Context
	capturer *gpu.Capturer
	window   gpucontext.WindowProvider

	view      *ViewPass
	cloud     *ColorCloudPass
	histogram *HistogramPass
	passes    []Pass

	frames  uint64
	skipped uint64
	sleep   func(time.Duration)
}

var _ colorscope.Renderer = (*Executor)(nil)

// NewExecutor builds every pass on cfg.Context.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Context == nil {
		return nil, gpu.ErrNilDevice
	}
	if cfg.Capturer == nil {
		return nil, errors.New("pass: executor needs a capturer")
	}
	if cfg.Compiler == nil {
		cfg.Compiler = NewCompiler(false)
	}
	if cfg.Window == nil {
		w, h := cfg.Capturer.Source().Size()
		cfg.Window = gpucontext.NullWindowProvider{W: int(w), H: int(h)}
	}
	e := &Executor{
		ctx:      cfg.Context,
		capturer: cfg.Capturer,
		window:   cfg.Window,
		sleep:    time.Sleep,
	}

	var err error
	if e.view, err = NewViewPass(cfg.Context, cfg.Compiler); err != nil {
		return nil, fmt.Errorf("pass: view: %w", err)
	}
	if e.cloud, err = NewColorCloudPass(cfg.Context, cfg.Compiler); err != nil {
		e.Close()
		return nil, fmt.Errorf("pass: color cloud: %w", err)
	}
	if e.histogram, err = NewHistogramPass(cfg.Context, cfg.Compiler); err != nil {
		e.Close()
		return nil, fmt.Errorf("pass: histogram: %w", err)
	}
	e.passes = []Pass{e.view, e.cloud, e.histogram}
	return e, nil
}

// SetLogger passes l to the pass and gpu packages.
func (e *Executor) SetLogger(l *slog.Logger) {
	SetLogger(l)
	gpu.SetLogger(l)
}

// SetDebug toggles the per-frame GPU timer dump.
func (e *Executor) SetDebug(debug bool) { e.ctx.SetDebug(debug) }

// Strategy returns the color cloud draw strategy.
func (e *Executor) Strategy() ColorCloudStrategy { return e.cloud.Strategy() }

// Frames returns the number of presented frames.
func (e *Executor) Frames() uint64 { return e.frames }

// Skipped returns the number of iterations that rendered nothing.
func (e *Executor) Skipped() uint64 { return e.skipped }

// Execute runs the render loop until the shared state is deactivated or
// ctx is done. Any error other than a missing frame ends the loop.
func (e *Executor) Execute(ctx context.Context, shared *colorscope.SharedState) error {
	for {
		st := shared.Snapshot()
		if !st.Active || ctx.Err() != nil {
			return nil
		}
		if err := e.Frame(ctx, st); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
}

// Frame runs one iteration of the loop for st. It sleeps FrameSkipSleep
// and returns nil when there is nothing to render.
func (e *Executor) Frame(ctx context.Context, st colorscope.State) error {
	w, h := e.window.Size()
	cw, ch := e.capturer.Source().Size()
	rect := ClampRect(st.Rect, w, h, cw, ch)
	if rect.Empty() {
		e.skip("empty capture rectangle")
		return nil
	}

	capture, err := e.capturer.Capture(ctx)
	if err != nil {
		return err
	}
	if capture == nil {
		e.skip("no new frame")
		return nil
	}
	srv, err := capture.SRV()
	if err != nil {
		return err
	}

	var bg gputypes.Color
	if st.ColorCloud.Enabled {
		bg = cloudClear
	}
	if err := e.ctx.BeginFrame(uint32(w), uint32(h), bg); err != nil {
		return err
	}
	cl := e.ctx.CommandList()
	cl.SetGraphicsTable(gpu.ParamCapture, srv)
	cl.SetComputeTable(gpu.ParamCapture, srv)

	f := &Frame{List: cl, State: st, Rect: rect}
	for _, p := range e.passes {
		if !p.Enabled(st) {
			continue
		}
		if err := p.Record(f); err != nil {
			return fmt.Errorf("pass: record %T: %w", p, err)
		}
	}
	if err := e.ctx.EndFrame(); err != nil {
		return err
	}
	e.frames++
	return nil
}

func (e *Executor) skip(reason string) {
	e.skipped++
	slogger().Debug("pass: frame skipped", "reason", reason)
	e.sleep(FrameSkipSleep)
}

// ClampRect limits rect to the capture bounds and to the client size of
// the window it is shown in.
func ClampRect(rect image.Rectangle, clientW, clientH int, captureW, captureH uint32) image.Rectangle {
	if clientW <= 0 || clientH <= 0 {
		return image.Rectangle{}
	}
	r := rect.Canon().Intersect(image.Rect(0, 0, int(captureW), int(captureH)))
	if r.Dx() > clientW {
		r.Max.X = r.Min.X + clientW
	}
	if r.Dy() > clientH {
		r.Max.Y = r.Min.Y + clientH
	}
	return r
}

// Close destroys the passes. The context and capturer stay open.
func (e *Executor) Close() {
	if e.histogram != nil {
		e.histogram.Destroy()
	}
	if e.cloud != nil {
		e.cloud.Destroy()
	}
	if e.view != nil {
		e.view.Destroy()
	}
	e.view, e.cloud, e.histogram, e.passes = nil, nil, nil, nil
}
