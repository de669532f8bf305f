package runner

import (
	"time"

	"github.com/jacobpovar/eventuate/committer"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/otel"
)

type SingleThreadedConfig struct {
	// ReadBatchSize is the maximum number of source events per read, both
	// during replay and while live tailing.
	ReadBatchSize int

	// PollInterval is the pause between reads when the runner is caught
	// up with the source log head.
	PollInterval time.Duration

	// Committer decides when to flush. When nil, a PeriodicCommitter with
	// its defaults is created per run and closed when the run ends.
	Committer committer.Committer

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() SingleThreadedConfig {
	return SingleThreadedConfig{
		ReadBatchSize: 128,
		PollInterval:  100 * time.Millisecond,
		Logger:        logger.NewNoopLogger(),
		Telemetry:     otel.Noop(),
	}
}

type SingleThreadedOption func(*SingleThreadedConfig)

func WithReadBatchSize(n int) SingleThreadedOption {
	return func(cfg *SingleThreadedConfig) {
		if n > 0 {
			cfg.ReadBatchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) SingleThreadedOption {
	return func(cfg *SingleThreadedConfig) {
		cfg.PollInterval = d
	}
}

func WithCommitter(c committer.Committer) SingleThreadedOption {
	return func(cfg *SingleThreadedConfig) {
		cfg.Committer = c
	}
}

func WithLogger(l logger.Logger) SingleThreadedOption {
	return func(cfg *SingleThreadedConfig) {
		cfg.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) SingleThreadedOption {
	return func(cfg *SingleThreadedConfig) {
		cfg.Telemetry = t
	}
}
