package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/otel"
)

// Processor consumes source events, buffers the output of a transformation,
// and flushes it to a target log in size-bounded chunks. Progress is tracked
// as the highest source sequence number whose output is durably committed,
// which makes replay after a crash or restart duplicate-free.
//
// A Processor is not safe for concurrent use: the platform serializes event
// handling against flushing for a given processor identity.
type Processor struct {
	id        string
	target    eventlog.TargetLog
	transform Transformation
	stamper   Stamper
	config    Config

	progress    int64
	lastHandled int64
	buffer      []eventlog.WriteUnit

	logger    logger.Logger
	telemetry *otel.Telemetry
}

// NewStateless creates a processor with the pass-through timestamp policy:
// outputs carry the source event's vector timestamp unchanged.
func NewStateless(id string, target eventlog.TargetLog, transform Transformation, opts ...Option) *Processor {
	return newProcessor(id, target, transform, NewStatelessStamper(id), opts)
}

// NewStateful creates a processor that owns a vector clock: outputs carry
// the processor's own causal time, advanced per emitted event.
func NewStateful(id string, target eventlog.TargetLog, transform Transformation, opts ...Option) *Processor {
	return newProcessor(id, target, transform, NewStatefulStamper(id), opts)
}

// New creates a processor with an explicit timestamp policy.
func New(id string, target eventlog.TargetLog, transform Transformation, stamper Stamper, opts ...Option) *Processor {
	return newProcessor(id, target, transform, stamper, opts)
}

func newProcessor(id string, target eventlog.TargetLog, transform Transformation, stamper Stamper, opts []Option) *Processor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Processor{
		id:        id,
		target:    target,
		transform: transform,
		stamper:   stamper,
		config:    cfg,
		logger:    cfg.Logger.With("processor", id),
		telemetry: cfg.Telemetry,
	}
}

func (p *Processor) ID() string {
	return p.id
}

// Progress is the highest source sequence number whose output is known to be
// durably committed.
func (p *Processor) Progress() int64 {
	return p.progress
}

// LastHandledSequenceNr is the sequence number of the most recently handled
// source event, equal to Progress when nothing is pending.
func (p *Processor) LastHandledSequenceNr() int64 {
	return p.lastHandled
}

// BufferedUnits is the number of output units awaiting flush.
func (p *Processor) BufferedUnits() int {
	return len(p.buffer)
}

// ReadProgress re-reads the committed progress from the target log and
// resets the in-memory handling state to it. It must be called before any
// event is handled, and again after any failed flush before replay resumes.
func (p *Processor) ReadProgress(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ReadTimeout)
	defer cancel()

	progress, err := p.target.ReadProgress(ctx, p.id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, eventlog.ErrReadTimeout
		}
		return 0, fmt.Errorf("read progress: %w", err)
	}

	p.progress = progress
	p.lastHandled = progress
	p.buffer = nil

	p.logger.Debug("Read processing progress", "progress", progress)

	return progress, nil
}

// Handle evaluates the transformation for one source event and buffers the
// resulting output unit. Events at or below the current progress were
// already durably processed in an earlier run and are discarded, which makes
// replay idempotent. No write happens here.
func (p *Processor) Handle(ctx context.Context, src *event.DurableEvent) {
	p.stamper.Observe(src)

	if src.SequenceNr <= p.progress {
		p.telemetry.EventsDiscarded.Add(ctx, 1)
		p.logger.Debug(
			"Discarding already processed event", "sequenceNr", src.SequenceNr, "progress", p.progress,
		)
		return
	}

	p.lastHandled = src.SequenceNr
	p.telemetry.EventsHandled.Add(ctx, 1)

	outputs, ok := p.transform(src)
	if !ok || len(outputs) == 0 {
		return
	}

	unit := eventlog.WriteUnit{
		SourceSequenceNr: src.SequenceNr,
		Events:           make([]event.DurableEvent, 0, len(outputs)),
	}
	for _, out := range outputs {
		unit.Events = append(unit.Events, p.stamper.Stamp(out, src))
	}

	p.buffer = append(p.buffer, unit)
}

// Flush writes the buffered output to the target log and returns the new
// progress. When nothing is pending it returns the current progress without
// touching the network.
//
// The buffer is split into chunks of at most WriteBatchSize events, never
// dividing one unit. Intermediate chunks are tagged with the pre-flush
// progress so that a crash between chunk writes resumes replay from before
// this cycle and re-derives the remaining chunks deterministically; only the
// final chunk carries the new progress. On failure the remaining chain is
// aborted, the in-memory progress stays unchanged, and the buffer is dropped:
// pending output is re-derived via replay, never resubmitted from stale
// buffered state.
func (p *Processor) Flush(ctx context.Context) (int64, error) {
	if p.lastHandled <= p.progress {
		return p.progress, nil
	}

	ctx, span := p.telemetry.Tracer.Start(ctx, "processor.flush")
	defer span.End()

	start := time.Now()
	defer func() {
		p.telemetry.FlushDuration.Record(ctx, time.Since(start).Seconds())
	}()

	previous := p.progress
	final := p.lastHandled
	units := p.buffer
	p.buffer = nil

	for {
		chunk, remainder := Split(units, p.config.WriteBatchSize)

		tag := final
		if len(remainder) > 0 {
			tag = previous
		}

		if err := p.write(ctx, chunk, tag); err != nil {
			// Roll handling state back to the last durable progress.
			// The dropped output is re-derived via replay, so a stray
			// Flush before recovery must not commit progress past it.
			p.lastHandled = p.progress

			span.RecordError(err)
			p.logger.Error(
				"Chunk write failed, aborting flush cycle",
				"error", err, "progress", p.progress, "chunkEvents", eventlog.EventCount(chunk),
			)
			return p.progress, err
		}

		if len(remainder) == 0 {
			break
		}
		units = remainder
	}

	p.progress = final
	p.logger.Debug("Flush committed", "progress", final, "previous", previous)

	return p.progress, nil
}

func (p *Processor) write(ctx context.Context, units []eventlog.WriteUnit, tag int64) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
	defer cancel()

	_, err := p.target.Write(
		ctx, eventlog.WriteRequest{
			Units:       units,
			WriterID:    p.id,
			Progress:    tag,
			CausalBound: p.stamper.CausalBound(),
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return eventlog.ErrWriteTimeout
		}
		return fmt.Errorf("write chunk: %w", err)
	}

	p.telemetry.ChunkWrites.Add(ctx, 1)
	p.telemetry.EventsWritten.Add(ctx, int64(eventlog.EventCount(units)))

	return nil
}
