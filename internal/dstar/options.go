package dstar

import "log/slog"

// DefaultMaxIterations bounds one ComputeShortestPath call. It is a safety
// valve against runaway searches, not a tuned constant.
const DefaultMaxIterations = 100000

// Options defines parameters for the planner.
type Options struct {
	MaxIterations int
	Logger        *slog.Logger
}

// Option is a function that modifies Options.
type Option func(*Options)

// WithMaxIterations sets the per-solve iteration bound.
func WithMaxIterations(n int) Option {
	return func(options *Options) { options.MaxIterations = n }
}

// WithLogger injects the logger used for replan diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(options *Options) { options.Logger = l }
}
