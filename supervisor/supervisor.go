package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/jacobpovar/eventuate/logger"
	"github.com/jacobpovar/eventuate/runner"
)

type Config struct {
	// MaxRestarts bounds how often a failed run is restarted before the
	// last failure is surfaced. Restarting is always safe: every run
	// begins with recovery, which re-reads progress and replays.
	MaxRestarts int

	// Backoff paces restarts.
	Backoff backoff.Backoff

	Logger logger.Logger
}

func defaultConfig() Config {
	return Config{
		MaxRestarts: 5,
		Backoff:     backoff.NewFixed(time.Second),
		Logger:      logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithMaxRestarts(n int) Option {
	return func(cfg *Config) {
		cfg.MaxRestarts = n
	}
}

func WithBackoff(b backoff.Backoff) Option {
	return func(cfg *Config) {
		cfg.Backoff = b
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// Supervisor restarts a failed processor run with backoff. The processor
// core performs no retries of its own; making every retry-from-scratch safe
// is its job, performing them is ours.
type Supervisor struct {
	runner runner.Runner
	config Config
	logger logger.Logger
}

func New(r runner.Runner, opts ...Option) *Supervisor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Supervisor{
		runner: r,
		config: cfg,
		logger: cfg.Logger,
	}
}

// Run drives the runner until ctx is canceled or the restart budget is
// exhausted, in which case the last failure is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := s.runner.Run(ctx)
		if err == nil {
			return nil
		}

		if attempt >= s.config.MaxRestarts {
			return fmt.Errorf("giving up after %d restarts: %w", attempt, err)
		}

		s.logger.Warn(
			"Processor run failed, restarting",
			"error", err, "attempt", attempt+1, "maxRestarts", s.config.MaxRestarts,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.config.Backoff.Next(uint(attempt))):
		}
	}
}
