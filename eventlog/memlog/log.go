package memlog

import (
	"context"
	"sync"
	"time"

	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/eventlog"
)

var _ eventlog.SourceReader = (*Log)(nil)
var _ eventlog.TargetLog = (*Log)(nil)

// WriteCall records one Write submission for test assertions, whether or not
// its units were deduplicated.
type WriteCall struct {
	Units       []eventlog.WriteUnit
	WriterID    string
	Progress    int64
	CausalBound event.VectorTime
}

// Log is an in-memory durable event log implementing both the source-reader
// and target-log contracts.
//
// De-duplication contract: the log stores, per writer, the highest source
// sequence number of any accepted unit. Units at or below that watermark are
// dropped silently, so chunks re-derived by replay after a crash commit
// exactly once. The progress value returned by ReadProgress is the tag of
// the last accepted write, independent of the watermark.
type Log struct {
	mu sync.RWMutex
	id string

	events          []event.DurableEvent
	progress        map[string]int64
	sourceWatermark map[string]int64
	currentVersion  event.VectorTime

	writes []WriteCall

	writeErr        func(req eventlog.WriteRequest) error
	readErr         func() error
	readProgressErr func() error
	writeDelay      time.Duration
	readDelay       time.Duration
}

func NewLog(id string, opts ...Option) *Log {
	l := &Log{
		id:              id,
		progress:        make(map[string]int64),
		sourceWatermark: make(map[string]int64),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Log) ID() string {
	return l.id
}

// Append seeds the log with events, assigning sequence numbers and the log's
// identity. It returns the stored events. Use it to populate a source log in
// tests; processors write through Write instead.
func (l *Log) Append(events ...event.DurableEvent) []event.DurableEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.append(events)
}

func (l *Log) append(events []event.DurableEvent) []event.DurableEvent {
	stored := make([]event.DurableEvent, 0, len(events))
	for _, e := range events {
		e.SequenceNr = int64(len(l.events)) + 1
		e.LocalLogID = l.id
		l.events = append(l.events, e)
		l.currentVersion = l.currentVersion.Merge(e.VectorTimestamp)
		stored = append(stored, e)
	}
	return stored
}

// Read returns up to max events starting at fromSequenceNr. An empty result
// means the caller has caught up with the log head.
func (l *Log) Read(ctx context.Context, fromSequenceNr int64, max int) ([]event.DurableEvent, error) {
	if err := l.sleep(ctx, l.readDelay); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.readErr != nil {
		if err := l.readErr(); err != nil {
			return nil, err
		}
	}

	if fromSequenceNr < 1 {
		fromSequenceNr = 1
	}
	if fromSequenceNr > int64(len(l.events)) {
		return nil, nil
	}

	end := fromSequenceNr - 1 + int64(max)
	if end > int64(len(l.events)) {
		end = int64(len(l.events))
	}

	read := make([]event.DurableEvent, end-fromSequenceNr+1)
	copy(read, l.events[fromSequenceNr-1:end])

	return read, nil
}

// Write appends the request's units and records the progress tag for the
// writer atomically. Units at or below the writer's source watermark are
// dropped. The call itself is always recorded for assertions.
func (l *Log) Write(ctx context.Context, req eventlog.WriteRequest) (int64, error) {
	if err := l.sleep(ctx, l.writeDelay); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if l.writeErr != nil {
		if err := l.writeErr(req); err != nil {
			return 0, err
		}
	}

	l.writes = append(
		l.writes, WriteCall{
			Units:       req.Units,
			WriterID:    req.WriterID,
			Progress:    req.Progress,
			CausalBound: req.CausalBound,
		},
	)

	for _, unit := range req.Units {
		if unit.SourceSequenceNr <= l.sourceWatermark[req.WriterID] {
			continue
		}

		l.append(unit.Events)
		l.sourceWatermark[req.WriterID] = unit.SourceSequenceNr
	}

	if req.Progress > l.progress[req.WriterID] {
		l.progress[req.WriterID] = req.Progress
	}
	l.currentVersion = l.currentVersion.Merge(req.CausalBound)

	return l.progress[req.WriterID], nil
}

// ReadProgress returns the last committed progress for writerID, zero when
// the writer has never committed.
func (l *Log) ReadProgress(ctx context.Context, writerID string) (int64, error) {
	if err := l.sleep(ctx, l.readDelay); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.readProgressErr != nil {
		if err := l.readProgressErr(); err != nil {
			return 0, err
		}
	}

	return l.progress[writerID], nil
}

func (l *Log) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Events returns a copy of all stored events in log order.
func (l *Log) Events() []event.DurableEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]event.DurableEvent, len(l.events))
	copy(events, l.events)
	return events
}

// Payloads returns the payloads of all stored events in log order.
func (l *Log) Payloads() []any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	payloads := make([]any, len(l.events))
	for i, e := range l.events {
		payloads[i] = e.Payload
	}
	return payloads
}

// Writes returns a copy of all recorded Write calls.
func (l *Log) Writes() []WriteCall {
	l.mu.RLock()
	defer l.mu.RUnlock()

	writes := make([]WriteCall, len(l.writes))
	copy(writes, l.writes)
	return writes
}

// Progress returns the committed progress for writerID without the
// bounded-time request path.
func (l *Log) Progress(writerID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.progress[writerID]
}

// CurrentVersion is the merge of all stored vector timestamps and causal
// bounds.
func (l *Log) CurrentVersion() event.VectorTime {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.currentVersion.Copy()
}

// SetWriteError configures an error returned by all Write calls.
// Pass nil to clear the error.
func (l *Log) SetWriteError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.writeErr = nil
	} else {
		l.writeErr = func(eventlog.WriteRequest) error { return err }
	}
}

// SetWriteErrorFunc configures a function to determine Write errors, e.g. to
// fail only the n-th chunk of a flush cycle.
func (l *Log) SetWriteErrorFunc(fn func(req eventlog.WriteRequest) error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeErr = fn
}

// SetReadError configures an error returned by all Read calls.
func (l *Log) SetReadError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.readErr = nil
	} else {
		l.readErr = func() error { return err }
	}
}

// SetReadProgressError configures an error returned by all ReadProgress
// calls.
func (l *Log) SetReadProgressError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.readProgressErr = nil
	} else {
		l.readProgressErr = func() error { return err }
	}
}
