package kgolog

import (
	"encoding/json"
	"fmt"

	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/serde"
)

// wireEvent is the stored form of a DurableEvent. The payload is encoded
// separately so applications can choose a payload serde independently of the
// envelope.
type wireEvent struct {
	Payload                 json.RawMessage
	SequenceNr              int64
	EmitterID               string
	EmitterAggregateID      string
	DestinationAggregateIDs []string
	VectorTimestamp         event.VectorTime
	LocalLogID              string

	// SourceSequenceNr attributes the event to the source event it was
	// derived from, stored for downstream de-duplication.
	SourceSequenceNr int64
}

func encodeEvent(topic string, e event.DurableEvent, sourceSequenceNr int64, payloads serde.UntypedSerialiser) ([]byte, error) {
	payload, err := payloads.Serialise(topic, e.Payload)
	if err != nil {
		return nil, fmt.Errorf("serialise payload: %w", err)
	}

	return json.Marshal(
		wireEvent{
			Payload:                 payload,
			SequenceNr:              e.SequenceNr,
			EmitterID:               e.EmitterID,
			EmitterAggregateID:      e.EmitterAggregateID,
			DestinationAggregateIDs: e.DestinationAggregateIDs,
			VectorTimestamp:         e.VectorTimestamp,
			LocalLogID:              e.LocalLogID,
			SourceSequenceNr:        sourceSequenceNr,
		},
	)
}

func decodeEvent(topic string, data []byte, payloads serde.UntypedDeserialiser) (event.DurableEvent, error) {
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		return event.DurableEvent{}, fmt.Errorf("decode event: %w", err)
	}

	payload, err := payloads.Deserialise(topic, we.Payload)
	if err != nil {
		return event.DurableEvent{}, fmt.Errorf("deserialise payload: %w", err)
	}

	return event.DurableEvent{
		Payload:                 payload,
		SequenceNr:              we.SequenceNr,
		EmitterID:               we.EmitterID,
		EmitterAggregateID:      we.EmitterAggregateID,
		DestinationAggregateIDs: we.DestinationAggregateIDs,
		VectorTimestamp:         we.VectorTimestamp,
		LocalLogID:              we.LocalLogID,
	}, nil
}

// progressMarker is the per-writer metadata record in the progress topic,
// keyed by writer identity so compaction keeps the latest marker.
type progressMarker struct {
	WriterID        string
	Progress        int64
	SourceWatermark int64
	CausalBound     event.VectorTime
}

func encodeMarker(m progressMarker) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMarker(data []byte, m *progressMarker) error {
	return json.Unmarshal(data, m)
}
