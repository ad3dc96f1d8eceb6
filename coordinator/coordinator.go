// Package coordinator tracks the live members of a consumer group and divides
// the log's partitions among them. Membership changes (join, leave, heartbeat
// timeout) trigger a rebalance: affected members are told to revoke first,
// and a partition is only handed to its new owner once the previous owner has
// released it. Exclusive ownership across processes is ultimately enforced by
// the checkpoint store's fencing tokens; the coordinator keeps rebalances
// orderly so fencing stays the exception, not the mechanism.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/datateam2/eventstream/logger"
	streamotel "github.com/datateam2/eventstream/otel"
)

var (
	// ErrUnknownMember rejects heartbeats and leaves from instances that are
	// not (or no longer) part of the group.
	ErrUnknownMember = errors.New("coordinator: unknown member")
	// ErrAlreadyJoined rejects a second join under the same member id.
	ErrAlreadyJoined = errors.New("coordinator: member already joined")
)

// Listener receives assignment changes for one group member. OnRevoked must
// block until the named partitions are fully released; the coordinator will
// not reassign them before it returns.
type Listener interface {
	OnAssigned(ctx context.Context, partitions []int32)
	OnRevoked(ctx context.Context, partitions []int32)
}

type member struct {
	id            string
	listener      Listener
	lastHeartbeat time.Time
}

type Coordinator struct {
	group      string
	partitions []int32
	config     Config

	// rebalanceMu serializes membership changes and the callback phases of a
	// rebalance. mu only guards the maps and is never held across callbacks.
	rebalanceMu sync.Mutex
	mu          sync.Mutex
	members     map[string]*member
	assignment  map[string][]int32

	logger    logger.Logger
	telemetry *streamotel.Telemetry
}

// New builds a coordinator for one consumer group over a fixed partition set.
func New(group string, partitions []int32, opts ...Option) *Coordinator {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	sorted := append([]int32(nil), partitions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &Coordinator{
		group:      group,
		partitions: sorted,
		config:     config,
		members:    make(map[string]*member),
		assignment: make(map[string][]int32),
		logger:     config.Logger.With("group", group),
		telemetry:  config.Telemetry,
	}
}

// Run sweeps for expired members until the context is cancelled. Members that
// miss the session timeout are removed and their partitions rebalanced away.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.expire(ctx)
		}
	}
}

// Join registers a member and rebalances. The listener receives its first
// assignment before Join returns.
func (c *Coordinator) Join(ctx context.Context, memberID string, l Listener) error {
	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	c.mu.Lock()
	if _, ok := c.members[memberID]; ok {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.members[memberID] = &member{id: memberID, listener: l, lastHeartbeat: time.Now()}
	c.mu.Unlock()

	c.logger.Info("Member joined", "member", memberID)
	c.rebalance(ctx)

	return nil
}

// Leave removes a member and rebalances its partitions onto the survivors.
// The departing member's listener is not called; it is expected to have
// released its partitions already (or to be fenced out on its next commit).
func (c *Coordinator) Leave(ctx context.Context, memberID string) error {
	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	c.mu.Lock()
	if _, ok := c.members[memberID]; !ok {
		c.mu.Unlock()
		return ErrUnknownMember
	}
	delete(c.members, memberID)
	c.mu.Unlock()

	c.logger.Info("Member left", "member", memberID)
	c.rebalance(ctx)

	return nil
}

// Heartbeat refreshes a member's liveness. Returns ErrUnknownMember once the
// member has been expired; the caller should rejoin.
func (c *Coordinator) Heartbeat(memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[memberID]
	if !ok {
		return ErrUnknownMember
	}
	m.lastHeartbeat = time.Now()

	return nil
}

// Assignment returns a copy of the current member-to-partitions mapping.
func (c *Coordinator) Assignment() map[string][]int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]int32, len(c.assignment))
	for m, parts := range c.assignment {
		out[m] = append([]int32(nil), parts...)
	}

	return out
}

func (c *Coordinator) expire(ctx context.Context) {
	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	c.mu.Lock()
	var expired []string
	for id, m := range c.members {
		if time.Since(m.lastHeartbeat) > c.config.SessionTimeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(c.members, id)
	}
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	sort.Strings(expired)
	c.logger.Warn("Expiring members after missed heartbeats", "members", expired)
	c.rebalance(ctx)
}

// rebalance recomputes the assignment and delivers the diff: revocations to
// all affected live members first, in parallel, then the new assignments.
// Caller holds rebalanceMu.
func (c *Coordinator) rebalance(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.members))
	listeners := make(map[string]Listener, len(c.members))
	current := make(map[string][]int32, len(c.assignment))
	for id, m := range c.members {
		ids = append(ids, id)
		listeners[id] = m.listener
	}
	for id, parts := range c.assignment {
		current[id] = append([]int32(nil), parts...)
	}
	c.mu.Unlock()

	next := c.config.Assign(c.partitions, ids, current)

	c.telemetry.Rebalances.Add(ctx, 1)

	var wg sync.WaitGroup
	for _, id := range ids {
		revoked := diff(current[id], next[id])
		if len(revoked) == 0 {
			continue
		}
		wg.Add(1)
		go func(l Listener, parts []int32) {
			defer wg.Done()
			l.OnRevoked(ctx, parts)
		}(listeners[id], revoked)
	}
	wg.Wait()

	c.mu.Lock()
	c.assignment = next
	c.mu.Unlock()

	for _, id := range ids {
		added := diff(next[id], current[id])
		if len(added) == 0 {
			continue
		}
		listeners[id].OnAssigned(ctx, added)
	}

	c.logger.Info("Group rebalanced", "members", len(ids), "assignment", next)
}

// diff returns the partitions in a that are not in b, preserving a's order.
func diff(a, b []int32) []int32 {
	in := make(map[int32]struct{}, len(b))
	for _, p := range b {
		in[p] = struct{}{}
	}

	var out []int32
	for _, p := range a {
		if _, ok := in[p]; !ok {
			out = append(out, p)
		}
	}

	return out
}
