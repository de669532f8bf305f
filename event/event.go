package event

// UndefinedLogID marks a locally produced event whose origin log has not yet
// been assigned. The target log replaces it with its own identifier on commit.
const UndefinedLogID = "undefined"

// DurableEvent is an immutable record in a durable event log.
//
// Events read from a source log carry the sequence number and log identifier
// assigned by that log. Events produced by a processor carry UndefinedLogID
// and a zero sequence number until the target log commits them.
type DurableEvent struct {
	// Payload is the opaque application value.
	Payload any

	// SequenceNr is monotonically increasing and unique within the owning
	// log. Zero until assigned.
	SequenceNr int64

	// EmitterID identifies the processor that produced the event.
	EmitterID string

	// EmitterAggregateID is the optional logical owner of the event.
	EmitterAggregateID string

	// DestinationAggregateIDs are routing tags. A transformation may
	// customize them on its outputs.
	DestinationAggregateIDs []string

	// VectorTimestamp is the causal clock snapshot assigned by the active
	// timestamp policy.
	VectorTimestamp VectorTime

	// LocalLogID is the identifier of the log that owns the event, or
	// UndefinedLogID while the event is pending commit.
	LocalLogID string
}

// Local reports whether the event is pending assignment by a target log.
func (e *DurableEvent) Local() bool {
	return e.LocalLogID == UndefinedLogID
}
