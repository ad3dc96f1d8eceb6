package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"

	"github.com/datateam2/eventstream/logger"
)

// LogAndContinue logs the error and skips the event. The partition keeps
// processing and the skipped offset is checkpointed.
func LogAndContinue(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error(
				"error processing event, skipping",
				"error", ec.Error,
				"event_id", ec.Event.ID,
				"partition", ec.Partition,
				"offset", ec.Offset,
				"group", ec.Group,
				"attempt", ec.Attempt,
			)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs the error and halts the partition (fail-fast policy).
func LogAndFail(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error(
				"error processing event, failing partition",
				"error", ec.Error,
				"event_id", ec.Event.ID,
				"partition", ec.Partition,
				"offset", ec.Offset,
				"group", ec.Group,
				"attempt", ec.Attempt,
			)
			return ActionFail{}
		},
	)
}

// SilentFail halts the partition without logging; the consumer surfaces the
// terminal error itself.
func SilentFail() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// WithMaxAttempts wraps a handler with retry logic.
// When the max attempts is reached, the fallback handler is called.
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			select {
			case <-ctx.Done():
				return ActionFail{}
			case <-time.After(b.Next(uint(ec.Attempt))):
			}

			return ActionRetry{}
		},
	)
}
