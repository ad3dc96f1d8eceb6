package producer

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/datateam2/eventstream/transport"
)

type sendOutcome int

const (
	outcomeSuccess sendOutcome = iota
	outcomeRetry
	outcomeFail
)

// retryState is the bounded retry machine for one batch send: it classifies
// each attempt's error into Success, Retry(delay) or Fail, tracking the
// attempt count and the backoff clock explicitly.
type retryState struct {
	attempts int
	cfg      RetryConfig
	bo       *backoff.ExponentialBackOff
}

func newRetryState(cfg RetryConfig) *retryState {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = cfg.Multiplier
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxInterval = cfg.MaxDelay
	bo.MaxElapsedTime = 0 // the attempt budget bounds the loop, not wall time
	bo.Reset()

	return &retryState{cfg: cfg, bo: bo}
}

// next classifies the result of one send attempt. Permanent errors and an
// exhausted attempt budget fail immediately; transient errors retry after the
// returned delay.
func (s *retryState) next(err error) (sendOutcome, time.Duration) {
	if err == nil {
		return outcomeSuccess, 0
	}

	s.attempts++
	if transport.IsPermanent(err) {
		return outcomeFail, 0
	}
	if s.attempts >= s.cfg.MaxAttempts {
		return outcomeFail, 0
	}
	return outcomeRetry, s.bo.NextBackOff()
}

// Attempts returns how many attempts have failed so far.
func (s *retryState) Attempts() int {
	return s.attempts
}
