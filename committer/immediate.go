package committer

import "sync"

var _ Committer = (*ImmediateCommitter)(nil)

// ImmediateCommitter commits after every processed event. Lowest redelivery
// window, highest checkpoint-store load.
type ImmediateCommitter struct {
	mu    sync.Mutex
	dirty bool
}

func NewImmediateCommitter() *ImmediateCommitter {
	return &ImmediateCommitter{}
}

func (c *ImmediateCommitter) RecordProcessed(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if count > 0 {
		c.dirty = true
	}
}

func (c *ImmediateCommitter) TryCommit() bool {
	c.mu.Lock()

	if !c.dirty {
		c.mu.Unlock()
		return false
	}

	return true
}

func (c *ImmediateCommitter) UnlockCommit(ok bool) {
	defer c.mu.Unlock()

	if ok {
		c.dirty = false
	}
}
