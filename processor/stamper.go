package processor

import (
	"github.com/jacobpovar/eventuate/event"
)

var _ Stamper = (*statelessStamper)(nil)
var _ Stamper = (*StatefulStamper)(nil)

// Stamper is the timestamp policy of a processor. It turns transformation
// outputs into durable events and decides which vector time they carry.
type Stamper interface {
	// Observe folds a handled source event into the policy's causal
	// state. Called for every source event, including replayed ones.
	Observe(src *event.DurableEvent)

	// Stamp builds the durable event for one transformation output.
	Stamp(out Emission, src *event.DurableEvent) event.DurableEvent

	// CausalBound is the vector time the next write is bounded by, nil
	// when the policy makes no claim.
	CausalBound() event.VectorTime
}

type statelessStamper struct {
	emitterID string
}

// NewStatelessStamper returns the pass-through policy: every output carries
// the source event's vector timestamp unchanged. The policy keeps no state
// across restarts; replay recomputes everything from source events alone.
func NewStatelessStamper(emitterID string) Stamper {
	return &statelessStamper{emitterID: emitterID}
}

func (s *statelessStamper) Observe(src *event.DurableEvent) {
	// no causal state
}

func (s *statelessStamper) Stamp(out Emission, src *event.DurableEvent) event.DurableEvent {
	return newOutputEvent(s.emitterID, out, src, src.VectorTimestamp.Copy())
}

func (s *statelessStamper) CausalBound() event.VectorTime {
	return nil
}

// StatefulStamper owns a vector clock that merges the timestamp of every
// observed source event and ticks its own entry per emitted event. Every
// emitted event is therefore causally dependent on everything the processor
// has observed so far.
//
// The clock state must be recovered before new outputs are stamped: replay
// all source events from the beginning (Observe advances the clock for
// replayed events too), or restore it from a snapshot taken elsewhere.
type StatefulStamper struct {
	emitterID string
	current   event.VectorTime
}

func NewStatefulStamper(emitterID string) *StatefulStamper {
	return &StatefulStamper{emitterID: emitterID}
}

func (s *StatefulStamper) Observe(src *event.DurableEvent) {
	s.current = s.current.Merge(src.VectorTimestamp)
}

func (s *StatefulStamper) Stamp(out Emission, src *event.DurableEvent) event.DurableEvent {
	s.current = s.current.Increment(s.emitterID)
	return newOutputEvent(s.emitterID, out, src, s.current.Copy())
}

func (s *StatefulStamper) CausalBound() event.VectorTime {
	return s.current.Copy()
}

// CurrentTime exposes the clock for snapshotting.
func (s *StatefulStamper) CurrentTime() event.VectorTime {
	return s.current.Copy()
}

// RestoreTime replaces the clock state, e.g. from a snapshot, before replay.
func (s *StatefulStamper) RestoreTime(vt event.VectorTime) {
	s.current = vt.Copy()
}

func newOutputEvent(emitterID string, out Emission, src *event.DurableEvent, vt event.VectorTime) event.DurableEvent {
	emitterAggregateID := out.EmitterAggregateID
	if emitterAggregateID == "" {
		emitterAggregateID = src.EmitterAggregateID
	}

	destinations := out.DestinationAggregateIDs
	if destinations == nil {
		destinations = src.DestinationAggregateIDs
	}

	return event.DurableEvent{
		Payload:                 out.Payload,
		EmitterID:               emitterID,
		EmitterAggregateID:      emitterAggregateID,
		DestinationAggregateIDs: destinations,
		VectorTimestamp:         vt,
		LocalLogID:              event.UndefinedLogID,
	}
}
