package mocktransport

import (
	"time"

	"github.com/datateam2/eventstream/transport"
)

type Option func(*Connection)

// WithPartitions sets how many partitions the log exposes.
func WithPartitions(n int) Option {
	return func(c *Connection) {
		c.partitions = make([]int32, n)
		for i := range c.partitions {
			c.partitions[i] = int32(i)
		}
	}
}

// WithSendScript queues per-call Send results consumed in order; nil entries
// succeed. Use FailSendsThenSucceed for the common transient-failure shape.
func WithSendScript(errs ...error) Option {
	return func(c *Connection) {
		c.sendScript = append(c.sendScript, errs...)
	}
}

// FailSendsThenSucceed scripts n transient failures followed by unscripted
// (successful) sends.
func FailSendsThenSucceed(n int, err error) Option {
	script := make([]error, n)
	for i := range script {
		script[i] = transport.Transient(err)
	}
	return WithSendScript(script...)
}

// WithSendError installs a per-call error hook evaluated after the script.
func WithSendError(fn func(partition int32, batch []byte) error) Option {
	return func(c *Connection) {
		c.sendErr = fn
	}
}

// WithPullError installs a per-call Pull error hook.
func WithPullError(fn func(partition int32) error) Option {
	return func(c *Connection) {
		c.pullErr = fn
	}
}

// WithPingError makes Ping return err.
func WithPingError(err error) Option {
	return func(c *Connection) {
		c.pingErr = err
	}
}

// WithSendDelay delays every Send, for exercising flush timers and shutdown.
func WithSendDelay(d time.Duration) Option {
	return func(c *Connection) {
		c.sendDelay = d
	}
}
