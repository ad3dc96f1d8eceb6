package errorhandler

import (
	"github.com/datateam2/eventstream/event"
)

// ErrorContext carries everything a handler needs to decide what to do with
// a failed event.
type ErrorContext struct {
	// Partition and Offset locate the failed record in the log.
	Partition int32
	Offset    int64

	// Group is the consumer group processing the record.
	Group string

	// Event is the decoded event, zero-valued when decoding itself failed.
	Event event.Event

	// Error is the error that occurred during processing.
	Error error

	// Attempt is the current attempt number, 1 indexed.
	Attempt int
}

func NewErrorContext(partition int32, offset int64, group string, ev event.Event) ErrorContext {
	return ErrorContext{
		Partition: partition,
		Offset:    offset,
		Group:     group,
		Event:     ev,
		Attempt:   1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}
