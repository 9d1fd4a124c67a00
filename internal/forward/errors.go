package forward

import "errors"

var (
	// ErrClosed is returned by sinks used after Close.
	ErrClosed = errors.New("forward: closed")

	// ErrSinkPanic wraps a panic recovered from a sink.
	ErrSinkPanic = errors.New("forward: sink panicked")
)
