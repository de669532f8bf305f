package eventlog

import (
	"context"

	"github.com/jacobpovar/eventuate/event"
)

// SourceReader is the read side of a durable event log. Reads are ordered by
// sequence number, restartable from any position, and empty when the caller
// has caught up with the log head.
type SourceReader interface {
	// Read returns up to max events starting at fromSequenceNr. An empty
	// result means the reader is at the log head, not that the stream
	// ended.
	Read(ctx context.Context, fromSequenceNr int64, max int) ([]event.DurableEvent, error)
}

// WriteUnit is the output of handling one source event. Units are the unit
// of write atomicity: a target log stores all events of a unit or none.
type WriteUnit struct {
	// SourceSequenceNr is the sequence number of the source event the
	// unit was derived from. The target log stores it atomically with the
	// events and uses it to drop units replayed after a crash.
	SourceSequenceNr int64

	Events []event.DurableEvent
}

// WriteRequest is a single chunk write to a target log.
type WriteRequest struct {
	// Units in source order. The target appends their events flattened.
	Units []WriteUnit

	// WriterID is the identity under which progress is tracked. No other
	// writer may update this identity's progress.
	WriterID string

	// Progress is the source sequence number this write advances the
	// writer's progress to. Intermediate chunks of a flush cycle carry
	// the pre-flush progress, the final chunk the post-flush one.
	Progress int64

	// CausalBound is the vector time below which the write has no missing
	// causal dependencies. Nil when the writer makes no claim.
	CausalBound event.VectorTime
}

// TargetLog is the write side of a durable event log, plus the metadata
// namespace holding per-writer processing progress.
type TargetLog interface {
	// Write appends a chunk and records req.Progress for req.WriterID
	// atomically. It returns the writer's progress after the write.
	// Units at or below the writer's stored source watermark are dropped
	// silently, which makes replayed writes idempotent.
	Write(ctx context.Context, req WriteRequest) (int64, error)

	// ReadProgress returns the last committed progress for writerID, zero
	// when the writer has never committed.
	ReadProgress(ctx context.Context, writerID string) (int64, error)
}

// EventCount returns the total number of events across units.
func EventCount(units []WriteUnit) int {
	n := 0
	for _, u := range units {
		n += len(u.Events)
	}
	return n
}

// FlattenUnits returns the events of units concatenated in order.
func FlattenUnits(units []WriteUnit) []event.DurableEvent {
	events := make([]event.DurableEvent, 0, EventCount(units))
	for _, u := range units {
		events = append(events, u.Events...)
	}
	return events
}
