package producer

import (
	"context"
	"sync"
)

// SendResult reports the terminal outcome of one submitted event: where it
// landed in the log, or why it never will.
type SendResult struct {
	Partition int32
	Offset    int64
	Err       error
}

// Future resolves exactly once, when the batch containing the event either
// lands in the log or exhausts its retry budget.
type Future struct {
	done chan struct{}
	res  SendResult
	once sync.Once
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(res SendResult) *Future {
	f := newFuture()
	f.resolve(res)
	return f
}

func (f *Future) resolve(res SendResult) {
	f.once.Do(func() {
		f.res = res
		close(f.done)
	})
}

// Done is closed once the future resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks for the result or the context, whichever first. The event's
// own outcome is reported in SendResult.Err; the returned error is non-nil
// only when the wait itself was interrupted.
func (f *Future) Wait(ctx context.Context) (SendResult, error) {
	select {
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	case <-f.done:
		return f.res, nil
	}
}
