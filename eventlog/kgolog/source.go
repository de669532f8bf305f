package kgolog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacobpovar/eventuate/event"
	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ eventlog.SourceReader = (*Source)(nil)

// Source reads DurableEvents from a single-partition Kafka topic. Sequence
// numbers map 1-based onto partition offsets, so replay from any sequence
// number is a partition seek.
type Source struct {
	client *kgo.Client
	config Config

	assigned bool
	nextSeq  int64
}

func NewSource(opts ...Option) (*Source, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithLogger(newKgoLogger(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	return &Source{client: client, config: cfg}, nil
}

// Read returns up to max events starting at fromSequenceNr. Empty results
// mean the reader is at the topic head. Source is not safe for concurrent
// use, matching the single-threaded processor contract.
func (s *Source) Read(ctx context.Context, fromSequenceNr int64, max int) ([]event.DurableEvent, error) {
	if fromSequenceNr < 1 {
		fromSequenceNr = 1
	}

	if !s.assigned || fromSequenceNr != s.nextSeq {
		s.seek(fromSequenceNr)
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.config.PollTimeout)
	defer cancel()

	fetches := s.client.PollRecords(pollCtx, max)
	for _, err := range fetches.Errors() {
		if errors.Is(err.Err, context.DeadlineExceeded) || errors.Is(err.Err, context.Canceled) {
			continue
		}
		return nil, fmt.Errorf("poll source: %w", err.Err)
	}

	records := fetches.Records()
	events := make([]event.DurableEvent, 0, len(records))
	for _, rec := range records {
		e, err := decodeEvent(s.config.Topic, rec.Value, s.config.PayloadSerde)
		if err != nil {
			return nil, err
		}
		e.SequenceNr = rec.Offset + 1
		e.LocalLogID = s.config.Topic
		events = append(events, e)

		s.nextSeq = rec.Offset + 2
	}

	return events, nil
}

func (s *Source) seek(fromSequenceNr int64) {
	if s.assigned {
		s.client.RemoveConsumePartitions(map[string][]int32{s.config.Topic: {0}})
	}

	s.client.AddConsumePartitions(
		map[string]map[int32]kgo.Offset{
			s.config.Topic: {0: kgo.NewOffset().At(fromSequenceNr - 1)},
		},
	)

	s.assigned = true
	s.nextSeq = fromSequenceNr
}

func (s *Source) Close() {
	s.client.Close()
}
