package event

import "fmt"

// ValidationError reports a caller bug: an event with missing or invalid
// fields. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: field %q %s", e.Field, e.Reason)
}

// FormatError reports bytes that could not be decoded into an event.
type FormatError struct {
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed event: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed event: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
