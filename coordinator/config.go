package coordinator

import (
	"time"

	"github.com/datateam2/eventstream/logger"
	"github.com/datateam2/eventstream/otel"
)

// AssignFunc computes a partition assignment for the given members. current
// holds the assignment in effect before the membership change; implementations
// must place every partition on exactly one member.
type AssignFunc func(partitions []int32, members []string, current map[string][]int32) map[string][]int32

type Config struct {
	// SessionTimeout expires a member that has not heartbeated for this long.
	SessionTimeout time.Duration

	// SweepInterval paces the expiry checks performed by Run.
	SweepInterval time.Duration

	// Assign is the rebalance policy. Defaults to the sticky balanced
	// assignment implemented by Assign.
	Assign AssignFunc

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		SessionTimeout: 10 * time.Second,
		SweepInterval:  time.Second,
		Assign:         Assign,
		Logger:         logger.NewNoopLogger(),
		Telemetry:      otel.Noop(),
	}
}

type Option func(*Config)

func WithSessionTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SessionTimeout = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SweepInterval = d
		}
	}
}

// WithAssignFunc replaces the rebalance policy.
func WithAssignFunc(fn AssignFunc) Option {
	return func(c *Config) {
		if fn != nil {
			c.Assign = fn
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l.With("component", "coordinator")
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}
