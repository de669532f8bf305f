package eventlog

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout is returned when a progress read exceeds its bound.
	ErrReadTimeout = errors.New("eventlog: read progress timed out")

	// ErrWriteTimeout is returned when a chunk write exceeds its bound.
	ErrWriteTimeout = errors.New("eventlog: write timed out")
)

// ReadRejectedError is an application-level rejection of a progress read,
// e.g. an unknown writer identity.
type ReadRejectedError struct {
	WriterID string
	Cause    error
}

func (e *ReadRejectedError) Error() string {
	return fmt.Sprintf("eventlog: read progress for writer %q rejected: %v", e.WriterID, e.Cause)
}

func (e *ReadRejectedError) Unwrap() error {
	return e.Cause
}

// WriteRejectedError is an application-level rejection of a chunk write,
// e.g. a causality violation or a storage failure.
type WriteRejectedError struct {
	WriterID string
	Cause    error
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("eventlog: write by writer %q rejected: %v", e.WriterID, e.Cause)
}

func (e *WriteRejectedError) Unwrap() error {
	return e.Cause
}
