package processor

import (
	"time"

	"github.com/jacobpovar/eventuate"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/otel"
)

type Config struct {
	// ReadTimeout bounds a single progress read from the target log.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single chunk write to the target log.
	WriteTimeout time.Duration

	// WriteBatchSize is the nominal maximum number of events per chunk.
	// A single output unit larger than this is still written whole.
	WriteBatchSize int

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		ReadTimeout:    eventuate.DefaultReadTimeout,
		WriteTimeout:   eventuate.DefaultWriteTimeout,
		WriteBatchSize: eventuate.DefaultWriteBatchSize,
		Logger:         logger.NewNoopLogger(),
		Telemetry:      otel.Noop(),
	}
}

type Option func(*Config)

func WithReadTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.ReadTimeout = d
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.WriteTimeout = d
	}
}

func WithWriteBatchSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.WriteBatchSize = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(cfg *Config) {
		cfg.Telemetry = t
	}
}
