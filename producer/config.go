package producer

import (
	"time"

	"github.com/datateam2/eventstream/logger"
	"github.com/datateam2/eventstream/otel"
)

// RetryConfig bounds the exponential backoff applied to transient send
// failures. MaxAttempts counts all tries including the first.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64
	MaxDelay    time.Duration
}

type Config struct {
	// MaxBatchCount and MaxBatchBytes seal a batch when reached.
	// MaxBatchBytes bounds the encoded batch payload.
	MaxBatchCount int
	MaxBatchBytes int

	// FlushInterval seals a non-empty batch that neither cap reached.
	FlushInterval time.Duration

	// QueueSize bounds events buffered per partition between Submit and the
	// send loop. A full queue blocks Submit (back-pressure).
	QueueSize int

	Retry RetryConfig

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		MaxBatchCount: 100,
		MaxBatchBytes: 1 << 20,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     256,
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   100 * time.Millisecond,
			Multiplier:  2.0,
			Jitter:      0.2,
			MaxDelay:    10 * time.Second,
		},
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}

type Option func(*Config)

func WithMaxBatchCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxBatchCount = n
		}
	}
}

func WithMaxBatchBytes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxBatchBytes = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.FlushInterval = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.QueueSize = n
		}
	}
}

func WithRetry(r RetryConfig) Option {
	return func(c *Config) {
		if r.MaxAttempts > 0 {
			c.Retry = r
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l.With("component", "producer")
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}
