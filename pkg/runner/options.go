package runner

import (
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithHandler configures a custom IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// WithStopOnError ends Run with ErrCellFailed at the first cell that does not succeed.
func WithStopOnError(stop bool) Option {
	return func(r *Runner) {
		r.stopOnError = stop
	}
}
