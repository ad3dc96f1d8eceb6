//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/errorhandler"
	"github.com/datateam2/eventstream/event"
	"github.com/datateam2/eventstream/logger"
	mocklogger "github.com/datateam2/eventstream/logger/mock"
)

func testContext() errorhandler.ErrorContext {
	ec := errorhandler.NewErrorContext(2, 15, "group-a", event.New("purchase"))
	return ec.WithError(errors.New("boom"))
}

func TestLogAndContinue(t *testing.T) {
	t.Parallel()

	log := mocklogger.New()
	action := errorhandler.LogAndContinue(log).Handle(context.Background(), testContext())

	require.Equal(t, errorhandler.ActionTypeContinue, action.Type())
	log.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error processing event, skipping")
}

func TestLogAndFail(t *testing.T) {
	t.Parallel()

	log := mocklogger.New()
	action := errorhandler.LogAndFail(log).Handle(context.Background(), testContext())

	require.Equal(t, errorhandler.ActionTypeFail, action.Type())
	log.AssertCalledWithLevel(t, logger.ErrorLevel)
}

func TestSilentFail(t *testing.T) {
	t.Parallel()

	action := errorhandler.SilentFail().Handle(context.Background(), testContext())
	require.Equal(t, errorhandler.ActionTypeFail, action.Type())
}

func TestWithMaxAttempts_RetriesThenFallsBack(t *testing.T) {
	t.Parallel()

	fallbackCalls := 0
	fallback := errorhandler.HandlerFunc(
		func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
			fallbackCalls++
			return errorhandler.ActionContinue{}
		},
	)

	h := errorhandler.WithMaxAttempts(3, backoff.NewFixed(time.Millisecond), fallback)

	ec := testContext()
	require.Equal(t, errorhandler.ActionTypeRetry, h.Handle(context.Background(), ec).Type())

	ec = ec.IncrementAttempt()
	require.Equal(t, errorhandler.ActionTypeRetry, h.Handle(context.Background(), ec).Type())

	ec = ec.IncrementAttempt()
	require.Equal(t, errorhandler.ActionTypeContinue, h.Handle(context.Background(), ec).Type())
	require.Equal(t, 1, fallbackCalls)
}

func TestWithMaxAttempts_CancelledContextFails(t *testing.T) {
	t.Parallel()

	h := errorhandler.WithMaxAttempts(5, backoff.NewFixed(time.Hour), errorhandler.SilentFail())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	action := h.Handle(ctx, testContext())
	require.Equal(t, errorhandler.ActionTypeFail, action.Type())
}

func TestErrorContextHelpers(t *testing.T) {
	t.Parallel()

	ec := errorhandler.NewErrorContext(1, 9, "group-a", event.New("error"))
	require.Equal(t, 1, ec.Attempt)

	ec2 := ec.IncrementAttempt()
	require.Equal(t, 2, ec2.Attempt)
	require.Equal(t, 1, ec.Attempt, "value semantics")

	err := errors.New("disk full")
	require.ErrorIs(t, ec.WithError(err).Error, err)
	require.Equal(t, 7, ec.WithAttempt(7).Attempt)
}
