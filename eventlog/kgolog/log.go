package kgolog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jacobpovar/eventuate/eventlog"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ eventlog.TargetLog = (*KgoLog)(nil)

type Config struct {
	BootstrapServers []string

	// Topic holds the events, ProgressTopic the per-writer progress
	// markers. ProgressTopic should be compacted and defaults to
	// Topic + ".progress".
	Topic         string
	ProgressTopic string

	// PayloadSerde encodes event payloads inside the stored envelope.
	// Typed serdes plug in via serde.ToUntyped.
	PayloadSerde serde.UntypedSerde

	// PollTimeout bounds a single poll while scanning the progress topic.
	// A poll that comes back empty within this bound means the scan
	// caught up with the topic head.
	PollTimeout time.Duration

	// TransactionalID identifies the transactional producer. Events and the
	// progress marker of one write commit or abort together. Defaults to
	// Topic + ".writer".
	TransactionalID string

	Logger logger.Logger
}

func defaultConfig() Config {
	return Config{
		BootstrapServers: []string{"localhost:9092"},
		Topic:            "events",
		PayloadSerde:     serde.JSON[any](),
		PollTimeout:      time.Second,
		Logger:           logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithBootstrapServers(servers []string) Option {
	return func(cfg *Config) {
		cfg.BootstrapServers = servers
	}
}

func WithTopic(topic string) Option {
	return func(cfg *Config) {
		cfg.Topic = topic
	}
}

func WithProgressTopic(topic string) Option {
	return func(cfg *Config) {
		cfg.ProgressTopic = topic
	}
}

func WithPayloadSerde(s serde.UntypedSerde) Option {
	return func(cfg *Config) {
		cfg.PayloadSerde = s
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.PollTimeout = d
	}
}

func WithTransactionalID(id string) Option {
	return func(cfg *Config) {
		cfg.TransactionalID = id
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l.With("client", "kgolog")
	}
}

// KgoLog is a Kafka-backed target log. Events are produced to the event
// topic; each accepted write carries a progress marker in the compacted
// progress topic, keyed by writer identity. Events and marker are committed
// in one producer transaction, so readers at read-committed isolation never
// observe a write whose marker was lost.
//
// The de-duplication contract is enforced client-side: the log tracks the
// per-writer source watermark (initialised from the last progress marker,
// advanced per write) and drops replayed units at or below it before
// producing. This is sound because a writer identity is owned by exactly one
// processor instance at a time.
type KgoLog struct {
	client *kgo.Client
	config Config

	mu         sync.Mutex
	watermarks map[string]int64
	progresses map[string]int64
}

func NewKgoLog(opts ...Option) (*KgoLog, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProgressTopic == "" {
		cfg.ProgressTopic = cfg.Topic + ".progress"
	}
	if cfg.TransactionalID == "" {
		cfg.TransactionalID = cfg.Topic + ".writer"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.TransactionalID(cfg.TransactionalID),
		kgo.WithLogger(newKgoLogger(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	return &KgoLog{
		client:     client,
		config:     cfg,
		watermarks: make(map[string]int64),
		progresses: make(map[string]int64),
	}, nil
}

func (l *KgoLog) Write(ctx context.Context, req eventlog.WriteRequest) (int64, error) {
	l.mu.Lock()
	watermark, known := l.watermarks[req.WriterID]
	l.mu.Unlock()

	if !known {
		marker, err := l.scanProgress(ctx, req.WriterID)
		if err != nil {
			return 0, err
		}
		watermark = marker.SourceWatermark
	}

	records := make([]*kgo.Record, 0, eventlog.EventCount(req.Units)+1)
	for _, unit := range req.Units {
		if unit.SourceSequenceNr <= watermark {
			continue
		}
		watermark = unit.SourceSequenceNr

		for _, e := range unit.Events {
			data, err := encodeEvent(l.config.Topic, e, unit.SourceSequenceNr, l.config.PayloadSerde)
			if err != nil {
				return 0, &eventlog.WriteRejectedError{WriterID: req.WriterID, Cause: err}
			}
			records = append(
				records, &kgo.Record{
					Topic: l.config.Topic,
					Key:   []byte(req.WriterID),
					Value: data,
				},
			)
		}
	}

	l.mu.Lock()
	progress := l.progresses[req.WriterID]
	l.mu.Unlock()
	if req.Progress > progress {
		progress = req.Progress
	}

	marker, err := encodeMarker(
		progressMarker{
			WriterID:        req.WriterID,
			Progress:        progress,
			SourceWatermark: watermark,
			CausalBound:     req.CausalBound,
		},
	)
	if err != nil {
		return 0, &eventlog.WriteRejectedError{WriterID: req.WriterID, Cause: err}
	}
	records = append(
		records, &kgo.Record{
			Topic: l.config.ProgressTopic,
			Key:   []byte(req.WriterID),
			Value: marker,
		},
	)

	if err := l.client.BeginTransaction(); err != nil {
		return 0, &eventlog.WriteRejectedError{WriterID: req.WriterID, Cause: err}
	}

	results := l.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		l.rollback(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &eventlog.WriteRejectedError{WriterID: req.WriterID, Cause: err}
	}

	if err := l.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &eventlog.WriteRejectedError{WriterID: req.WriterID, Cause: err}
	}

	l.mu.Lock()
	l.watermarks[req.WriterID] = watermark
	l.progresses[req.WriterID] = progress
	l.mu.Unlock()

	return progress, nil
}

// rollback aborts the open transaction so a partially produced chunk never
// becomes visible. Uses a detached context: the caller's may already be done.
func (l *KgoLog) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if err := l.client.AbortBufferedRecords(ctx); err != nil {
		l.config.Logger.Warn("Abort buffered records failed", "error", err)
	}
	if err := l.client.EndTransaction(ctx, kgo.TryAbort); err != nil {
		l.config.Logger.Warn("Abort transaction failed", "error", err)
	}
}

func (l *KgoLog) ReadProgress(ctx context.Context, writerID string) (int64, error) {
	marker, err := l.scanProgress(ctx, writerID)
	if err != nil {
		return 0, err
	}
	return marker.Progress, nil
}

// scanProgress reads the progress topic from the start and returns the last
// marker for writerID, caching the watermark for subsequent writes.
func (l *KgoLog) scanProgress(ctx context.Context, writerID string) (progressMarker, error) {
	marker := progressMarker{WriterID: writerID}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(l.config.BootstrapServers...),
		kgo.ConsumeTopics(l.config.ProgressTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithLogger(newKgoLogger(l.config.Logger)),
	)
	if err != nil {
		return marker, &eventlog.ReadRejectedError{WriterID: writerID, Cause: err}
	}
	defer client.Close()

	for {
		pollCtx, cancel := context.WithTimeout(ctx, l.config.PollTimeout)
		fetches := client.PollFetches(pollCtx)
		cancel()

		if err := ctx.Err(); err != nil {
			return marker, err
		}

		done := false
		for _, err := range fetches.Errors() {
			if errors.Is(err.Err, context.DeadlineExceeded) || errors.Is(err.Err, context.Canceled) {
				done = true
				continue
			}
			return marker, &eventlog.ReadRejectedError{WriterID: writerID, Cause: err.Err}
		}

		records := fetches.Records()
		for _, rec := range records {
			if string(rec.Key) != writerID {
				continue
			}
			if err := decodeMarker(rec.Value, &marker); err != nil {
				return marker, &eventlog.ReadRejectedError{WriterID: writerID, Cause: err}
			}
		}

		if done || len(records) == 0 {
			break
		}
	}

	l.mu.Lock()
	if marker.SourceWatermark > l.watermarks[writerID] {
		l.watermarks[writerID] = marker.SourceWatermark
	}
	if marker.Progress > l.progresses[writerID] {
		l.progresses[writerID] = marker.Progress
	}
	l.mu.Unlock()

	return marker, nil
}

func (l *KgoLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx)
}

func (l *KgoLog) Close() {
	l.client.Close()
}
