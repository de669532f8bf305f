package memlog

import (
	"time"
)

// Option is a functional option for configuring a Log.
type Option func(*Log)

// WithWriteDelay adds an artificial delay to Write calls. Useful for
// exercising write-timeout behavior.
func WithWriteDelay(d time.Duration) Option {
	return func(l *Log) {
		l.writeDelay = d
	}
}

// WithReadDelay adds an artificial delay to Read and ReadProgress calls.
func WithReadDelay(d time.Duration) Option {
	return func(l *Log) {
		l.readDelay = d
	}
}

// WithWriteError configures an error returned by all Write calls.
func WithWriteError(err error) Option {
	return func(l *Log) {
		l.SetWriteError(err)
	}
}

// WithReadProgressError configures an error returned by all ReadProgress
// calls.
func WithReadProgressError(err error) Option {
	return func(l *Log) {
		l.SetReadProgressError(err)
	}
}
