//go:build unit

package runner_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jacobpovar/eventuate/committer"
	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/jacobpovar/eventuate/eventlog/memlog"
	"github.com/jacobpovar/eventuate/processor"
	"github.com/jacobpovar/eventuate/runner"
	"github.com/stretchr/testify/require"
)

func doubleTransform(src *event.DurableEvent) ([]processor.Emission, bool) {
	s, ok := src.Payload.(string)
	if !ok {
		return nil, false
	}
	return []processor.Emission{
		{Payload: s + "-1"},
		{Payload: s + "-2"},
	}, true
}

func seedSource(source *memlog.Log, payloads ...any) {
	for _, p := range payloads {
		source.Append(event.DurableEvent{Payload: p, EmitterID: "upstream"})
	}
}

func newTestRunner(p *processor.Processor, source *memlog.Log) *runner.SingleThreaded {
	return runner.NewSingleThreaded(
		p, source,
		runner.WithPollInterval(time.Millisecond),
		runner.WithCommitter(
			committer.NewPeriodicCommitter(
				committer.WithMaxCount(1),
				committer.WithMaxInterval(time.Millisecond),
			),
		),
	)
}

func TestSingleThreaded_RecoversThenTails(t *testing.T) {
	t.Parallel()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, "a", "b")

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := newTestRunner(p, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// replayed events are flushed before the runner goes live
	require.Eventually(
		t, func() bool { return target.Progress("proc-1") == 2 },
		time.Second, time.Millisecond,
	)
	require.Equal(t, runner.StateLive, r.State())

	// live tailing picks up events appended after recovery
	seedSource(source, "c")
	require.Eventually(
		t, func() bool { return target.Progress("proc-1") == 3 },
		time.Second, time.Millisecond,
	)

	cancel()
	require.NoError(t, <-done)

	target.AssertPayloads(t, "a-1", "a-2", "b-1", "b-2", "c-1", "c-2")
}

func TestSingleThreaded_ReplaySkipsCommittedEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, "a", "b", "c")

	// a previous run committed output for the first two events
	_, err := target.Write(
		ctx, eventlog.WriteRequest{
			Units: []eventlog.WriteUnit{
				{SourceSequenceNr: 1, Events: []event.DurableEvent{{Payload: "a-1"}, {Payload: "a-2"}}},
				{SourceSequenceNr: 2, Events: []event.DurableEvent{{Payload: "b-1"}, {Payload: "b-2"}}},
			},
			WriterID: "proc-1",
			Progress: 2,
		},
	)
	require.NoError(t, err)

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := newTestRunner(p, source)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	require.Eventually(
		t, func() bool { return target.Progress("proc-1") == 3 },
		time.Second, time.Millisecond,
	)

	cancel()
	require.NoError(t, <-done)

	target.AssertPayloads(t, "a-1", "a-2", "b-1", "b-2", "c-1", "c-2")
}

// Output handled under MaxCount must still be flushed once MaxInterval
// elapses, even when the source goes quiet afterwards.
func TestSingleThreaded_FlushesOnIntervalWhileIdle(t *testing.T) {
	t.Parallel()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := runner.NewSingleThreaded(
		p, source,
		runner.WithPollInterval(time.Millisecond),
		runner.WithCommitter(
			committer.NewPeriodicCommitter(
				committer.WithMaxCount(100),
				committer.WithMaxInterval(20*time.Millisecond),
			),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(
		t, func() bool { return r.State() == runner.StateLive },
		time.Second, time.Millisecond,
	)

	// one event, far below MaxCount, then nothing
	seedSource(source, "a")
	require.Eventually(
		t, func() bool { return target.Progress("proc-1") == 1 },
		time.Second, time.Millisecond,
	)

	cancel()
	require.NoError(t, <-done)

	target.AssertPayloads(t, "a-1", "a-2")
}

func TestSingleThreaded_FailsOnRecoveryReadError(t *testing.T) {
	t.Parallel()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	target.SetReadProgressError(&eventlog.ReadRejectedError{WriterID: "proc-1", Cause: errors.New("unknown writer")})

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := newTestRunner(p, source)

	err := r.Run(context.Background())

	var rejected *eventlog.ReadRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, runner.StateFailed, r.State())
}

func TestSingleThreaded_FailsOnFlushError(t *testing.T) {
	t.Parallel()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, "a")
	target.SetWriteError(errors.New("storage failure"))

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := newTestRunner(p, source)

	err := r.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, runner.StateFailed, r.State())
	target.AssertEventCount(t, 0)
}

// Restarting after a failed run is always safe: the next run re-reads
// progress and replays, producing each output exactly once.
func TestSingleThreaded_RestartAfterFailureIsDuplicateFree(t *testing.T) {
	t.Parallel()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, "a", "b")

	failing := true
	target.SetWriteErrorFunc(
		func(eventlog.WriteRequest) error {
			if failing {
				return fmt.Errorf("transient storage failure")
			}
			return nil
		},
	)

	p := processor.NewStateless("proc-1", target, doubleTransform)
	r := newTestRunner(p, source)

	require.Error(t, r.Run(context.Background()))
	require.Equal(t, runner.StateFailed, r.State())

	failing = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(
		t, func() bool { return target.Progress("proc-1") == 2 },
		time.Second, time.Millisecond,
	)

	cancel()
	require.NoError(t, <-done)

	target.AssertPayloads(t, "a-1", "a-2", "b-1", "b-2")
}
