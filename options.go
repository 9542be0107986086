package colorscope

import "log/slog"

// Option configures a Worker during creation.
// Use functional options to customize Worker behavior.
//
// Example:
//
//	state := colorscope.NewSharedState(colorscope.DefaultState())
//	w, err := colorscope.NewWorker(renderer, colorscope.WithSharedState(state))
type Option func(*options)

// options holds optional configuration for Worker creation.
type options struct {
	state   *SharedState
	initial State
	logger  *slog.Logger
	debug   bool
}

// defaultOptions returns the default worker options.
func defaultOptions() options {
	return options{
		initial: DefaultState(),
	}
}

// WithSharedState makes the worker render from an existing shared state,
// typically the one a Controller writes to.
func WithSharedState(s *SharedState) Option {
	return func(o *options) {
		o.state = s
	}
}

// WithInitialState sets the state of a worker-owned SharedState.
// It is ignored when WithSharedState is also given.
func WithInitialState(st State) Option {
	return func(o *options) {
		o.initial = st
	}
}

// WithLogger sets the package logger before the worker starts.
// Equivalent to calling SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDebug turns on per-frame GPU timing dumps in renderers that support
// them. Timing also needs a device with timestamp queries.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}
