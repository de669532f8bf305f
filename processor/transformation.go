package processor

import (
	"github.com/jacobpovar/eventuate/event"
)

// Emission is one output payload of a transformation, together with optional
// routing overrides. When EmitterAggregateID or DestinationAggregateIDs are
// left empty, the stamped event inherits them from the source event.
type Emission struct {
	Payload                 any
	EmitterAggregateID      string
	DestinationAggregateIDs []string
}

// Transformation is the partial application function of a processor. It
// returns the output payloads derived from a source event, or ok=false when
// it is not defined for the event's payload.
//
// A transformation must be a pure function of the input event and the
// processor's causal state: no I/O, no dependence on wall-clock time.
// Recovery replays source events through it and relies on it producing the
// same outputs every time.
type Transformation func(src *event.DurableEvent) (outputs []Emission, ok bool)
