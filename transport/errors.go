package transport

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: throttling, broken
// connections, leadership movement. Errors of unknown provenance are treated
// as transient so that a retry budget, not a classification miss, decides
// when to give up.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient transport error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix: auth rejection,
// batches the service will never accept, exceeded quotas.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent transport error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials. Always permanent.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err may be retried. Anything not explicitly
// permanent counts as transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
