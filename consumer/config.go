package consumer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datateam2/eventstream/committer"
	"github.com/datateam2/eventstream/errorhandler"
	"github.com/datateam2/eventstream/logger"
	"github.com/datateam2/eventstream/otel"
)

// StartingPosition picks where consumption begins when a (partition, group)
// pair has no checkpoint. An existing checkpoint always wins.
type StartingPosition string

const (
	StartEarliest       StartingPosition = "earliest"
	StartLatest         StartingPosition = "latest"
	StartFromCheckpoint StartingPosition = "from-checkpoint"
)

func (p StartingPosition) Validate() error {
	switch p {
	case StartEarliest, StartLatest, StartFromCheckpoint:
		return nil
	default:
		return fmt.Errorf("unknown starting position %q", p)
	}
}

type Config struct {
	// Group names the consumer group; checkpoints are keyed by it.
	Group string

	// ConsumerID identifies this instance for ownership claims and group
	// membership. Defaults to a random id per process.
	ConsumerID string

	// StartingPosition applies only when no checkpoint exists.
	// StartFromCheckpoint falls back to the earliest retained offset.
	StartingPosition StartingPosition

	// MaxPullRecords caps records fetched per pull.
	MaxPullRecords int

	// PollInterval is the wait between pulls that returned nothing.
	PollInterval time.Duration

	// NewCommitter builds the commit pacer for each partition. Committers
	// hold per-partition state, so the config carries a factory rather than
	// an instance.
	NewCommitter func() committer.Committer

	// ErrorHandler decides what happens to an event whose processing failed.
	ErrorHandler errorhandler.Handler

	// HeartbeatInterval paces group membership heartbeats.
	HeartbeatInterval time.Duration

	// RevokeTimeout bounds how long a rebalance waits for a partition to
	// drain before giving up on it.
	RevokeTimeout time.Duration

	// RestartDelay is the pause before a failed partition consumer is
	// restarted with a fresh ownership claim.
	RestartDelay time.Duration

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		Group:             "default",
		ConsumerID:        "consumer-" + uuid.NewString(),
		StartingPosition:  StartFromCheckpoint,
		MaxPullRecords:    100,
		PollInterval:      250 * time.Millisecond,
		NewCommitter:      func() committer.Committer { return committer.NewImmediateCommitter() },
		ErrorHandler:      SilentFailHandler(),
		HeartbeatInterval: 3 * time.Second,
		RevokeTimeout:     30 * time.Second,
		RestartDelay:      5 * time.Second,
		Logger:            logger.NewNoopLogger(),
		Telemetry:         otel.Noop(),
	}
}

// SilentFailHandler is the default fail-fast policy.
func SilentFailHandler() errorhandler.Handler {
	return errorhandler.SilentFail()
}

type Option func(*Config)

func WithGroup(group string) Option {
	return func(c *Config) {
		if group != "" {
			c.Group = group
		}
	}
}

func WithConsumerID(id string) Option {
	return func(c *Config) {
		if id != "" {
			c.ConsumerID = id
		}
	}
}

func WithStartingPosition(p StartingPosition) Option {
	return func(c *Config) {
		c.StartingPosition = p
	}
}

func WithMaxPullRecords(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPullRecords = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithCommitInterval switches to batched checkpointing: a commit lands once
// the interval elapses or maxCount events were processed since the last one.
func WithCommitInterval(d time.Duration, maxCount int) Option {
	return func(c *Config) {
		c.NewCommitter = func() committer.Committer {
			return committer.NewPeriodicCommitter(
				committer.WithMaxInterval(d),
				committer.WithMaxCount(maxCount),
			)
		}
	}
}

// WithImmediateCommits checkpoints after every processed event.
func WithImmediateCommits() Option {
	return func(c *Config) {
		c.NewCommitter = func() committer.Committer { return committer.NewImmediateCommitter() }
	}
}

func WithCommitter(factory func() committer.Committer) Option {
	return func(c *Config) {
		if factory != nil {
			c.NewCommitter = factory
		}
	}
}

func WithErrorHandler(h errorhandler.Handler) Option {
	return func(c *Config) {
		if h != nil {
			c.ErrorHandler = h
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	}
}

func WithRevokeTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RevokeTimeout = d
		}
	}
}

func WithRestartDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RestartDelay = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l.With("component", "consumer")
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}
