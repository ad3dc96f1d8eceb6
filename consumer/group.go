package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/coordinator"
	"github.com/datateam2/eventstream/logger"
	"github.com/datateam2/eventstream/transport"
)

// Group runs one consumer-group member: it joins the coordinator, heartbeats,
// and spins one PartitionConsumer per assigned partition. Revocations drain
// the affected partitions before the coordinator hands them elsewhere.
type Group struct {
	conn    transport.Connection
	store   checkpoint.Store
	coord   *coordinator.Coordinator
	process ProcessFunc
	config  Config
	opts    []Option

	runCtx context.Context

	mu      sync.Mutex
	running map[int32]*runningPartition

	logger logger.Logger
}

type runningPartition struct {
	consumer *PartitionConsumer
	done     chan struct{}
	stop     chan struct{}
}

var _ coordinator.Listener = (*Group)(nil)

// NewGroup builds a group member. The same opts are applied to the group and
// to every partition consumer it starts.
func NewGroup(
	conn transport.Connection,
	store checkpoint.Store,
	coord *coordinator.Coordinator,
	process ProcessFunc,
	opts ...Option,
) *Group {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Group{
		conn:    conn,
		store:   store,
		coord:   coord,
		process: process,
		config:  config,
		opts:    opts,
		running: make(map[int32]*runningPartition),
		logger:  config.Logger.With("group", config.Group, "member", config.ConsumerID),
	}
}

// Run joins the group and heartbeats until the context is cancelled, then
// leaves cleanly, draining all owned partitions.
func (g *Group) Run(ctx context.Context) error {
	g.mu.Lock()
	g.runCtx = ctx
	g.mu.Unlock()

	if err := g.coord.Join(ctx, g.config.ConsumerID, g); err != nil {
		return err
	}
	g.logger.Info("Joined group")

	ticker := time.NewTicker(g.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Leave triggers the coordinator's revoke path, which drains our
			// partitions through OnRevoked before reassigning them.
			leaveCtx, cancel := context.WithTimeout(context.Background(), g.config.RevokeTimeout)
			err := g.coord.Leave(leaveCtx, g.config.ConsumerID)
			cancel()
			g.revokeAll()
			g.logger.Info("Left group")
			if err != nil && !errors.Is(err, coordinator.ErrUnknownMember) {
				return err
			}
			return ctx.Err()

		case <-ticker.C:
			err := g.coord.Heartbeat(g.config.ConsumerID)
			if errors.Is(err, coordinator.ErrUnknownMember) {
				// Expired after missed heartbeats. Rejoin for a fresh
				// assignment; fencing already invalidated the old leases.
				g.logger.Warn("Session expired, rejoining group")
				g.revokeAll()
				if jerr := g.coord.Join(ctx, g.config.ConsumerID, g); jerr != nil {
					return jerr
				}
			} else if err != nil {
				return err
			}
		}
	}
}

// OnAssigned starts a partition consumer per assigned partition.
func (g *Group) OnAssigned(_ context.Context, partitions []int32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, partition := range partitions {
		if _, ok := g.running[partition]; ok {
			continue
		}
		g.startLocked(partition)
	}
}

// OnRevoked drains the named partitions and blocks until each has reached a
// terminal state, honoring the coordinator's release-before-reassign rule.
func (g *Group) OnRevoked(_ context.Context, partitions []int32) {
	var wg sync.WaitGroup
	for _, partition := range partitions {
		g.mu.Lock()
		rp, ok := g.running[partition]
		var pc *PartitionConsumer
		if ok {
			delete(g.running, partition)
			pc = rp.consumer
		}
		g.mu.Unlock()
		if !ok {
			continue
		}

		wg.Add(1)
		go func(partition int32, rp *runningPartition, pc *PartitionConsumer) {
			defer wg.Done()
			close(rp.stop)
			if err := pc.Revoke(g.config.RevokeTimeout); err != nil {
				// Stuck in user processing. Ownership fencing protects the
				// partition once the next owner claims it.
				g.logger.Error("Partition did not drain in time", "partition", partition, "error", err)
				return
			}
			<-rp.done
		}(partition, rp, pc)
	}
	wg.Wait()
}

// startLocked spawns the run-and-restart loop for one partition. Caller holds
// g.mu.
func (g *Group) startLocked(partition int32) {
	rp := &runningPartition{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	rp.consumer = NewPartitionConsumer(partition, g.conn, g.store, g.process, g.opts...)
	g.running[partition] = rp

	ctx := g.runCtx

	go func() {
		defer close(rp.done)

		for {
			g.mu.Lock()
			pc := rp.consumer
			g.mu.Unlock()
			err := pc.Run(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}

			select {
			case <-rp.stop:
				return
			default:
			}

			// A failed partition is restarted with a fresh ownership claim
			// rather than left dead under a stable membership.
			g.logger.Warn(
				"Restarting failed partition consumer",
				"partition", partition,
				"error", err,
				"delay", g.config.RestartDelay,
			)

			select {
			case <-ctx.Done():
				return
			case <-rp.stop:
				return
			case <-time.After(g.config.RestartDelay):
			}

			next := NewPartitionConsumer(partition, g.conn, g.store, g.process, g.opts...)
			g.mu.Lock()
			if cur, ok := g.running[partition]; ok && cur == rp {
				rp.consumer = next
				g.mu.Unlock()
				continue
			}
			g.mu.Unlock()
			return
		}
	}()
}

// revokeAll drains every running partition, used on shutdown and rejoin.
func (g *Group) revokeAll() {
	g.mu.Lock()
	partitions := make([]int32, 0, len(g.running))
	for partition := range g.running {
		partitions = append(partitions, partition)
	}
	g.mu.Unlock()

	g.OnRevoked(context.Background(), partitions)
}

// Consumers returns the partition consumers currently owned by this member.
func (g *Group) Consumers() map[int32]*PartitionConsumer {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[int32]*PartitionConsumer, len(g.running))
	for partition, rp := range g.running {
		out[partition] = rp.consumer
	}

	return out
}
