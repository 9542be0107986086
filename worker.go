package colorscope

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Renderer runs the capture, render and present loop. Execute returns nil
// when the shared state is deactivated or ctx is done, and the first fatal
// error otherwise.
type Renderer interface {
	Execute(ctx context.Context, state *SharedState) error
}

// debugSetter is implemented by renderers with a debug mode.
type debugSetter interface {
	SetDebug(bool)
}

// Worker owns the dedicated render goroutine. The UI goroutine writes to
// the shared state while the worker renders from per-frame snapshots.
//
// A render error ends the loop. The worker does not restart it: Stop or
// Wait reports the error and the caller decides what to do.
type Worker struct {
	renderer Renderer
	state    *SharedState
	debug    bool

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	running bool
}

// NewWorker creates a worker for renderer. The worker is not started.
func NewWorker(renderer Renderer, opts ...Option) (*Worker, error) {
	if renderer == nil {
		return nil, ErrNilRenderer
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	state := o.state
	if state == nil {
		state = NewSharedState(o.initial)
	}
	return &Worker{renderer: renderer, state: state, debug: o.debug}, nil
}

// State returns the shared state the worker renders from.
func (w *Worker) State() *SharedState { return w.state }

// Start launches the render goroutine. The goroutine is locked to its OS
// thread for the lifetime of the loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWorkerRunning
	}

	propagateLogger(w.renderer)
	if d, ok := w.renderer.(debugSetter); ok {
		d.SetDebug(w.debug)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	w.group = g
	w.cancel = cancel
	w.running = true
	w.state.SetActive(true)

	g.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		Logger().Info("colorscope: render loop started")
		err := w.renderer.Execute(gctx, w.state)
		if err != nil {
			Logger().Error("colorscope: render loop stopped", "err", err)
		} else {
			Logger().Info("colorscope: render loop finished")
		}
		return err
	})
	return nil
}

// Running reports whether Start was called without a matching Wait.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop clears the active flag, which the loop observes at the top of its
// next iteration, and blocks until the render goroutine has exited.
func (w *Worker) Stop() error {
	w.state.SetActive(false)
	return w.Wait()
}

// Wait blocks until the render goroutine exits and returns its error.
func (w *Worker) Wait() error {
	w.mu.Lock()
	g, cancel := w.group, w.cancel
	w.mu.Unlock()
	if g == nil {
		return nil
	}

	err := g.Wait()
	cancel()

	w.mu.Lock()
	if w.group == g {
		w.group = nil
		w.cancel = nil
		w.running = false
	}
	w.mu.Unlock()
	forgetLogger(w.renderer)
	return err
}
