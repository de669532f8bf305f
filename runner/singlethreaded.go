package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jacobpovar/eventuate/committer"
	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/processor"
)

var _ Runner = (*SingleThreaded)(nil)

// SingleThreaded drives one processor on a single logical thread of control:
// recovery, event handling, and flushing are never concurrent with each
// other. Source events arriving mid-flush are simply read in the next poll
// and buffered for the next cycle.
type SingleThreaded struct {
	processor *processor.Processor
	source    eventlog.SourceReader
	config    SingleThreadedConfig

	state  atomic.Int32
	logger logger.Logger
}

func NewSingleThreaded(p *processor.Processor, source eventlog.SourceReader, opts ...SingleThreadedOption) *SingleThreaded {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &SingleThreaded{
		processor: p,
		source:    source,
		config:    cfg,
		logger:    cfg.Logger.With("processor", p.ID()),
	}
}

func (r *SingleThreaded) State() State {
	return State(r.state.Load())
}

func (r *SingleThreaded) setState(s State) {
	r.state.Store(int32(s))
}

func (r *SingleThreaded) fail(err error) error {
	r.setState(StateFailed)
	return err
}

// Run recovers the processor and then tails the source log until ctx is
// canceled. Any read or write failure ends the run in the Failed state;
// restarting is the caller's decision and is always safe, because pending
// output is re-derived from the source stream, never from stale state.
func (r *SingleThreaded) Run(ctx context.Context) error {
	c := r.config.Committer
	if c == nil {
		pc := committer.NewPeriodicCommitter()
		defer pc.Close()
		c = pc
	}

	next, err := r.recover(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.setState(StateLive)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.C():
			if err := r.flush(ctx); err != nil {
				return r.fail(err)
			}
		default:
		}

		batch, err := r.source.Read(ctx, next, r.config.ReadBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return r.fail(fmt.Errorf("read source: %w", err))
		}

		if len(batch) == 0 {
			// The committer's interval trigger only advances when told the
			// iteration happened, so pending output is flushed even while
			// the source is idle.
			c.EventsHandled(0)

			select {
			case <-ctx.Done():
				return nil
			case <-c.C():
				if err := r.flush(ctx); err != nil {
					return r.fail(err)
				}
			case <-time.After(r.config.PollInterval):
			}
			continue
		}

		for i := range batch {
			r.processor.Handle(ctx, &batch[i])
		}
		next = batch[len(batch)-1].SequenceNr + 1

		c.EventsHandled(len(batch))
	}
}

// recover reads the committed progress and replays the source stream from
// progress+1, re-deriving any output lost with the previous run. The replay
// is flushed before the runner goes live.
func (r *SingleThreaded) recover(ctx context.Context) (int64, error) {
	r.setState(StateRecovering)
	start := time.Now()

	progress, err := r.processor.ReadProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}

	next := progress + 1
	replayed := 0

	for {
		batch, err := r.source.Read(ctx, next, r.config.ReadBatchSize)
		if err != nil {
			return 0, fmt.Errorf("recover: read source: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			r.processor.Handle(ctx, &batch[i])
		}
		next = batch[len(batch)-1].SequenceNr + 1
		replayed += len(batch)
	}

	if _, err := r.processor.Flush(ctx); err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}

	r.config.Telemetry.ReplayedEvents.Add(ctx, int64(replayed))
	r.config.Telemetry.RecoveryDuration.Record(ctx, time.Since(start).Seconds())

	r.logger.Info(
		"Recovery complete",
		"progress", r.processor.Progress(), "replayed", replayed,
	)

	return next, nil
}

func (r *SingleThreaded) flush(ctx context.Context) error {
	progress, err := r.processor.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	r.logger.Debug("Flushed", "progress", progress)

	return nil
}
