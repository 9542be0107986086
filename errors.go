package colorscope

import "errors"

var (
	// ErrUnknownMode is returned when parsing an unknown mode name.
	ErrUnknownMode = errors.New("colorscope: unknown mode")

	// ErrWorkerRunning is returned by Worker.Start when the render
	// goroutine is already running.
	ErrWorkerRunning = errors.New("colorscope: worker already running")

	// ErrNilRenderer is returned by NewWorker when no renderer is given.
	ErrNilRenderer = errors.New("colorscope: renderer is nil")
)
