//go:build unit

package processor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/jacobpovar/eventuate/eventlog/memlog"
	"github.com/jacobpovar/eventuate/processor"
	"github.com/stretchr/testify/require"
)

// countTransform emits n outputs for a source event with integer payload n
// and is undefined for any other payload. Outputs are named after the source
// sequence number, so duplicates are easy to spot in the target log.
func countTransform(src *event.DurableEvent) ([]processor.Emission, bool) {
	n, ok := src.Payload.(int)
	if !ok {
		return nil, false
	}

	outputs := make([]processor.Emission, n)
	for i := range outputs {
		outputs[i] = processor.Emission{Payload: fmt.Sprintf("out-%d-%d", src.SequenceNr, i)}
	}
	return outputs, true
}

// seedSource appends one source event per payload and returns the stored
// events.
func seedSource(source *memlog.Log, payloads ...any) []event.DurableEvent {
	events := make([]event.DurableEvent, len(payloads))
	for i, payload := range payloads {
		events[i] = event.DurableEvent{
			Payload:         payload,
			EmitterID:       "upstream",
			VectorTimestamp: event.VectorTime{"upstream": int64(i + 1)},
		}
	}
	return source.Append(events...)
}

// handleAll replays every source event through the processor, as the
// recovery driver and live tailing do.
func handleAll(ctx context.Context, t *testing.T, p *processor.Processor, source *memlog.Log) {
	t.Helper()

	events, err := source.Read(ctx, 1, 1000)
	require.NoError(t, err)
	for i := range events {
		p.Handle(ctx, &events[i])
	}
}

func TestFlush_NothingPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memlog.NewLog("target")
	p := processor.NewStateless("proc-1", target, countTransform)

	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)

	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), progress)

	// no pending output means zero network operations
	target.AssertWriteCount(t, 0)
}

func TestHandle_DiscardsAlreadyProcessedEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 1, 1)

	// a prior run committed progress 2
	_, err := target.Write(ctx, eventlog.WriteRequest{WriterID: "proc-1", Progress: 2})
	require.NoError(t, err)

	p := processor.NewStateless("proc-1", target, countTransform)
	_, err = p.ReadProgress(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), p.Progress())

	handleAll(ctx, t, p, source)

	require.Equal(t, 1, p.BufferedUnits(), "only the event past progress is buffered")
	require.Equal(t, int64(3), p.LastHandledSequenceNr())
}

func TestFlush_SingleChunk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 1, 1)

	p := processor.NewStateless("proc-1", target, countTransform)
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)

	before := p.Progress()
	handleAll(ctx, t, p, source)

	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, progress, before)
	require.Equal(t, int64(3), progress)

	target.AssertWriteCount(t, 1)
	target.AssertWriteTags(t, 3)
	target.AssertPayloads(t, "out-1-0", "out-2-0", "out-3-0")
	target.AssertProgress(t, "proc-1", 3)
}

// Buffer of units sized [2,3,2] with batch limit 4 flushes as three
// sequential writes: no two adjacent units fit one chunk. The two
// intermediate writes carry the pre-flush progress, the final write the
// last handled sequence number.
func TestFlush_IntermediateChunksCarryPreFlushProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 2, 3, 2)

	p := processor.NewStateless("proc-1", target, countTransform, processor.WithWriteBatchSize(4))
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)

	// establish pre-flush progress 1
	events, err := source.Read(ctx, 1, 1)
	require.NoError(t, err)
	p.Handle(ctx, &events[0])
	_, err = p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Progress())

	events, err = source.Read(ctx, 2, 1000)
	require.NoError(t, err)
	for i := range events {
		p.Handle(ctx, &events[i])
	}

	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), progress)

	target.AssertWriteCount(t, 4)
	target.AssertWriteTags(t, 1, 1, 1, 4)
	target.AssertEventCount(t, 8)
	target.AssertProgress(t, "proc-1", 4)
}

// A single output unit larger than the batch limit is written whole in its
// own chunk, not split or rejected.
func TestFlush_OversizedUnitWrittenWhole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 10)

	p := processor.NewStateless("proc-1", target, countTransform, processor.WithWriteBatchSize(4))
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), progress)

	target.AssertWriteCount(t, 1)
	target.AssertEventCount(t, 10)
}

// Events the transformation is undefined for still advance progress: the
// next flush is a progress-only write with zero events.
func TestFlush_AdvancesProgressPastUnhandledEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, "not-an-int", "also-not")

	p := processor.NewStateless("proc-1", target, countTransform)
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	require.Equal(t, 0, p.BufferedUnits())

	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), progress)

	target.AssertWriteCount(t, 1)
	target.AssertEventCount(t, 0)
	target.AssertProgress(t, "proc-1", 2)
}

func TestFlush_FailureDropsBufferAndKeepsProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 1)

	p := processor.NewStateless("proc-1", target, countTransform)
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	target.SetWriteError(errors.New("storage failure"))

	_, err = p.Flush(ctx)
	require.Error(t, err)
	require.Equal(t, int64(0), p.Progress(), "failed flush leaves progress unchanged")
	require.Equal(t, 0, p.BufferedUnits(), "buffer is dropped, not retried in place")

	// a stray flush before recovery must not commit progress past the
	// dropped output
	target.SetWriteError(nil)
	progress, err := p.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), progress)
	target.AssertEventCount(t, 0)
}

// Replaying the whole source stream through a fresh processor instance after
// a completed run writes nothing new: the target log content is identical to
// a single clean run.
func TestReplay_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 2, "skip", 1, 3)

	run := func() {
		p := processor.NewStateless("proc-1", target, countTransform)
		_, err := p.ReadProgress(ctx)
		require.NoError(t, err)
		handleAll(ctx, t, p, source)
		_, err = p.Flush(ctx)
		require.NoError(t, err)
	}

	run()
	firstRun := target.Payloads()
	require.Len(t, firstRun, 7)
	target.AssertProgress(t, "proc-1", 5)

	// simulated restart: full replay through a fresh instance
	run()

	target.AssertPayloads(t, firstRun...)
	target.AssertProgress(t, "proc-1", 5)
}

// Crash between chunk writes: the intermediate chunk committed, the final
// one timed out. After restart, replay from the pre-flush progress
// re-derives both chunks; the target drops the units it already stored and
// commits the rest exactly once.
func TestRecovery_AfterPartialFlush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 2, 3, 2)

	writes := 0
	target.SetWriteErrorFunc(
		func(eventlog.WriteRequest) error {
			writes++
			if writes == 3 {
				return context.DeadlineExceeded
			}
			return nil
		},
	)

	p := processor.NewStateless("proc-1", target, countTransform, processor.WithWriteBatchSize(4))
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	_, err = p.Flush(ctx)
	require.ErrorIs(t, err, eventlog.ErrWriteTimeout)

	// first two chunks landed, progress did not advance
	target.AssertEventCount(t, 5)
	target.AssertProgress(t, "proc-1", 0)

	// restart: fresh instance, replay from progress+1
	target.SetWriteErrorFunc(nil)
	p2 := processor.NewStateless("proc-1", target, countTransform, processor.WithWriteBatchSize(4))
	_, err = p2.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p2, source)

	progress, err := p2.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), progress)

	target.AssertEventCount(t, 7)
	target.AssertPayloads(
		t,
		"out-1-0", "out-1-1",
		"out-2-0", "out-2-1", "out-2-2",
		"out-3-0", "out-3-1",
	)
	target.AssertProgress(t, "proc-1", 3)
}

func TestFlush_WriteTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target", memlog.WithWriteDelay(100*time.Millisecond))
	seedSource(source, 1)

	p := processor.NewStateless(
		"proc-1", target, countTransform,
		processor.WithWriteTimeout(5*time.Millisecond),
	)
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	_, err = p.Flush(ctx)
	require.ErrorIs(t, err, eventlog.ErrWriteTimeout)
	require.Equal(t, int64(0), p.Progress())
}

func TestReadProgress_Timeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memlog.NewLog("target", memlog.WithReadDelay(100*time.Millisecond))

	p := processor.NewStateless(
		"proc-1", target, countTransform,
		processor.WithReadTimeout(5*time.Millisecond),
	)

	_, err := p.ReadProgress(ctx)
	require.ErrorIs(t, err, eventlog.ErrReadTimeout)
}

func TestReadProgress_SurfacesRejection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memlog.NewLog("target")
	target.SetReadProgressError(&eventlog.ReadRejectedError{WriterID: "proc-1", Cause: errors.New("unknown writer")})

	p := processor.NewStateless("proc-1", target, countTransform)

	_, err := p.ReadProgress(ctx)
	var rejected *eventlog.ReadRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "proc-1", rejected.WriterID)
}

// The stateful variant stamps outputs with the processor's own clock, so the
// same flush also carries a causal bound.
func TestFlush_StatefulCausalBound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := memlog.NewLog("source")
	target := memlog.NewLog("target")
	seedSource(source, 1, 1)

	p := processor.NewStateful("proc-1", target, countTransform)
	_, err := p.ReadProgress(ctx)
	require.NoError(t, err)
	handleAll(ctx, t, p, source)

	_, err = p.Flush(ctx)
	require.NoError(t, err)

	writes := target.Writes()
	require.Len(t, writes, 1)
	require.Equal(t, int64(2), writes[0].CausalBound.LocalTime("proc-1"))
	require.Equal(t, int64(2), writes[0].CausalBound.LocalTime("upstream"))
}
