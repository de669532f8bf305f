package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/jacobpovar/eventuate"

// Telemetry holds all OpenTelemetry instruments for the library.
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer trace.Tracer

	// Handler metrics
	EventsHandled   metric.Int64Counter
	EventsDiscarded metric.Int64Counter

	// Write pipeline metrics
	EventsWritten metric.Int64Counter
	ChunkWrites   metric.Int64Counter
	FlushDuration metric.Float64Histogram

	// Recovery metrics
	ReplayedEvents   metric.Int64Counter
	RecoveryDuration metric.Float64Histogram
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	eventsHandled, err := meter.Int64Counter(
		"processor.events.handled",
		metric.WithDescription("Source events handled"),
	)
	if err != nil {
		return nil, err
	}

	eventsDiscarded, err := meter.Int64Counter(
		"processor.events.discarded",
		metric.WithDescription("Source events discarded as already processed"),
	)
	if err != nil {
		return nil, err
	}

	eventsWritten, err := meter.Int64Counter(
		"processor.events.written",
		metric.WithDescription("Events written to the target log"),
	)
	if err != nil {
		return nil, err
	}

	chunkWrites, err := meter.Int64Counter(
		"processor.chunk.writes",
		metric.WithDescription("Chunk writes submitted to the target log"),
	)
	if err != nil {
		return nil, err
	}

	flushDuration, err := meter.Float64Histogram(
		"processor.flush.duration",
		metric.WithDescription("Time per Flush() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	replayedEvents, err := meter.Int64Counter(
		"processor.replay.events",
		metric.WithDescription("Events replayed during recovery"),
	)
	if err != nil {
		return nil, err
	}

	recoveryDuration, err := meter.Float64Histogram(
		"processor.recovery.duration",
		metric.WithDescription("Time spent in the Recovering state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:           tracer,
		EventsHandled:    eventsHandled,
		EventsDiscarded:  eventsDiscarded,
		EventsWritten:    eventsWritten,
		ChunkWrites:      chunkWrites,
		FlushDuration:    flushDuration,
		ReplayedEvents:   replayedEvents,
		RecoveryDuration: recoveryDuration,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil)
	return t
}
