// Package consumer pulls events from assigned partitions, applies the
// caller's processing function in offset order, and advances durable
// checkpoints. Each partition runs in its own single-threaded loop so
// delivery within a partition stays strictly ordered; parallelism comes from
// running one consumer per partition.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/committer"
	"github.com/datateam2/eventstream/errorhandler"
	"github.com/datateam2/eventstream/event"
	"github.com/datateam2/eventstream/logger"
	streamotel "github.com/datateam2/eventstream/otel"
	"github.com/datateam2/eventstream/transport"
)

var (
	// ErrRevokeTimeout reports a partition that did not drain within the
	// revocation grace period.
	ErrRevokeTimeout = errors.New("consumer: revoke timed out")
	// ErrHalted marks a partition stopped by the fail-fast error policy.
	ErrHalted = errors.New("consumer: partition halted by error policy")
)

// PartitionContext locates the record being processed and carries its
// log-side properties.
type PartitionContext struct {
	Partition  int32
	Group      string
	Offset     int64
	EnqueuedAt time.Time
}

// ProcessFunc handles one event. A nil return checkpoints the event's offset;
// an error hands the event to the configured error handler.
type ProcessFunc func(ctx context.Context, pc PartitionContext, ev event.Event) error

// PartitionConsumer owns the processing loop for a single partition. Run
// drives it to a terminal state; Revoke drains it early for a rebalance.
type PartitionConsumer struct {
	partition int32
	conn      transport.Connection
	store     checkpoint.Store
	process   ProcessFunc
	config    Config

	mu    sync.Mutex
	state State
	token string

	revokeCh   chan struct{}
	revokeOnce sync.Once
	doneCh     chan struct{}

	logger    logger.Logger
	telemetry *streamotel.Telemetry
}

// NewPartitionConsumer builds a consumer for one partition. It does not claim
// ownership until Run is called.
func NewPartitionConsumer(
	partition int32,
	conn transport.Connection,
	store checkpoint.Store,
	process ProcessFunc,
	opts ...Option,
) *PartitionConsumer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &PartitionConsumer{
		partition: partition,
		conn:      conn,
		store:     store,
		process:   process,
		config:    config,
		state:     StateUnassigned,
		revokeCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    config.Logger.With("partition", partition, "group", config.Group),
		telemetry: config.Telemetry,
	}
}

func (c *PartitionConsumer) Partition() int32 { return c.partition }

func (c *PartitionConsumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *PartitionConsumer) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("State transition", "from", prev, "to", s)
	}
}

// Run claims ownership, then pulls and processes events until the context is
// cancelled, the partition is revoked, or an unrecoverable error halts it.
// Always leaves the consumer in a terminal state before returning.
func (c *PartitionConsumer) Run(ctx context.Context) error {
	defer close(c.doneCh)

	c.setState(StateLeasing)

	cur, hasCheckpoint, err := c.store.Load(ctx, c.partition, c.config.Group)
	if err != nil {
		return c.fail(fmt.Errorf("load checkpoint: %w", err))
	}

	token, err := c.store.ClaimOwnership(ctx, c.partition, c.config.Group, c.config.ConsumerID)
	if err != nil {
		return c.fail(fmt.Errorf("claim ownership: %w", err))
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	next, err := c.startOffset(ctx, cur, hasCheckpoint)
	if err != nil {
		return c.fail(fmt.Errorf("resolve starting offset: %w", err))
	}
	c.logger.Info("Partition active", "from_offset", next, "has_checkpoint", hasCheckpoint)

	c.setState(StateActive)
	c.telemetry.PartitionsActive.Add(ctx, 1, metric.WithAttributes(
		streamotel.AttrGroup.String(c.config.Group),
	))
	defer c.telemetry.PartitionsActive.Add(ctx, -1, metric.WithAttributes(
		streamotel.AttrGroup.String(c.config.Group),
	))

	comm := c.config.NewCommitter()

	// processed tracks the highest offset whose event completed processing.
	processed := int64(-1)
	hasProcessed := false
	if hasCheckpoint {
		processed = cur.Offset
		hasProcessed = true
	}

	for {
		select {
		case <-ctx.Done():
			return c.drain(comm, processed, hasProcessed)
		case <-c.revokeCh:
			return c.drain(comm, processed, hasProcessed)
		default:
		}

		records, err := c.conn.Pull(ctx, c.partition, next, c.config.MaxPullRecords)
		if err != nil {
			if ctx.Err() != nil {
				return c.drain(comm, processed, hasProcessed)
			}
			if transport.IsPermanent(err) {
				return c.fail(fmt.Errorf("pull: %w", err))
			}
			c.logger.Warn("Transient pull failure", "error", err, "from_offset", next)
			if !c.pause(ctx) {
				return c.drain(comm, processed, hasProcessed)
			}
			continue
		}

		if len(records) == 0 {
			// Idle ticks still drive interval-based committers.
			if err := c.maybeCommit(ctx, comm, processed, hasProcessed); err != nil {
				return c.fail(err)
			}
			if !c.pause(ctx) {
				return c.drain(comm, processed, hasProcessed)
			}
			continue
		}

		for _, rec := range records {
			select {
			case <-ctx.Done():
				return c.drain(comm, processed, hasProcessed)
			case <-c.revokeCh:
				return c.drain(comm, processed, hasProcessed)
			default:
			}

			if err := c.handleRecord(ctx, rec); err != nil {
				if final := c.commit(ctx, processed, hasProcessed); final != nil {
					c.logger.Error("Final checkpoint failed", "error", final)
				}
				return c.fail(err)
			}

			processed = rec.Offset
			hasProcessed = true
			next = rec.Offset + 1

			c.telemetry.EventsConsumed.Add(ctx, 1, metric.WithAttributes(
				streamotel.AttrPartition.Int(int(c.partition)),
				streamotel.AttrGroup.String(c.config.Group),
			))

			comm.RecordProcessed(1)
			if err := c.maybeCommit(ctx, comm, processed, hasProcessed); err != nil {
				return c.fail(err)
			}
		}
	}
}

// Revoke asks the consumer to finish its in-flight event, commit a final
// checkpoint, and release the partition. Safe to call more than once.
func (c *PartitionConsumer) Revoke(timeout time.Duration) error {
	c.revokeOnce.Do(func() { close(c.revokeCh) })

	select {
	case <-c.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: partition %d", ErrRevokeTimeout, c.partition)
	}
}

// handleRecord decodes and processes one record, looping through the error
// handler until it settles on skip, halt, or success.
func (c *PartitionConsumer) handleRecord(ctx context.Context, rec transport.SequencedRecord) error {
	ev, decodeErr := event.Unmarshal(rec.Data)

	ec := errorhandler.NewErrorContext(c.partition, rec.Offset, c.config.Group, ev)

	if decodeErr != nil {
		// Zero-valued event; the handler decides skip versus halt.
		ec.Event = event.Event{}
		return c.settle(ctx, ec, decodeErr)
	}

	pc := PartitionContext{
		Partition:  c.partition,
		Group:      c.config.Group,
		Offset:     rec.Offset,
		EnqueuedAt: rec.EnqueuedAt,
	}

	for {
		err := c.process(ctx, pc, ev)
		if err == nil {
			return nil
		}

		c.telemetry.ProcessErrors.Add(ctx, 1, metric.WithAttributes(
			streamotel.AttrPartition.Int(int(c.partition)),
			streamotel.AttrGroup.String(c.config.Group),
		))

		action := c.config.ErrorHandler.Handle(ctx, ec.WithError(err))
		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			return nil
		case errorhandler.ActionTypeRetry:
			ec = ec.IncrementAttempt()
		case errorhandler.ActionTypeFail:
			return fmt.Errorf("%w: offset %d: %w", ErrHalted, rec.Offset, err)
		}
	}
}

// settle runs the error handler for a record that cannot be processed at all,
// such as one that failed to decode.
func (c *PartitionConsumer) settle(ctx context.Context, ec errorhandler.ErrorContext, err error) error {
	for {
		action := c.config.ErrorHandler.Handle(ctx, ec.WithError(err))
		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			return nil
		case errorhandler.ActionTypeRetry:
			ec = ec.IncrementAttempt()
		case errorhandler.ActionTypeFail:
			return fmt.Errorf("%w: offset %d: %w", ErrHalted, ec.Offset, err)
		}
	}
}

func (c *PartitionConsumer) maybeCommit(
	ctx context.Context, comm committer.Committer, offset int64, has bool,
) error {
	if !has || !comm.TryCommit() {
		return nil
	}

	err := c.commit(ctx, offset, has)
	comm.UnlockCommit(err == nil)

	return err
}

// commit writes the checkpoint for offset. A stale-offset rejection is
// resolved by re-reading the cursor: when a newer offset is already stored
// the commit was superseded and counts as done.
func (c *PartitionConsumer) commit(ctx context.Context, offset int64, has bool) error {
	if !has {
		return nil
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	err := c.store.Commit(ctx, checkpoint.Cursor{
		Partition:  c.partition,
		Group:      c.config.Group,
		Offset:     offset,
		OwnerToken: token,
	})

	switch {
	case err == nil:
		c.telemetry.CheckpointCommits.Add(ctx, 1, metric.WithAttributes(
			streamotel.AttrPartition.Int(int(c.partition)),
			streamotel.AttrGroup.String(c.config.Group),
		))
		return nil

	case errors.Is(err, checkpoint.ErrFenced):
		// Lost the lease. Processing must stop immediately.
		return fmt.Errorf("commit offset %d: %w", offset, err)

	case errors.Is(err, checkpoint.ErrStaleOffset):
		cur, ok, lerr := c.store.Load(ctx, c.partition, c.config.Group)
		if lerr != nil {
			return fmt.Errorf("re-read after stale commit: %w", lerr)
		}
		if ok && cur.Offset >= offset {
			c.logger.Debug("Commit superseded by newer checkpoint", "offset", offset, "stored", cur.Offset)
			return nil
		}
		return fmt.Errorf("commit offset %d: %w", offset, err)

	default:
		return fmt.Errorf("commit offset %d: %w", offset, err)
	}
}

// drain finishes the revocation path: final checkpoint, then release.
func (c *PartitionConsumer) drain(comm committer.Committer, offset int64, has bool) error {
	c.setState(StateDraining)

	// Final commit uses a fresh context; the run context may already be
	// cancelled and the checkpoint must still land.
	ctx, cancel := context.WithTimeout(context.Background(), c.config.RevokeTimeout)
	defer cancel()

	if err := c.commit(ctx, offset, has); err != nil {
		if errors.Is(err, checkpoint.ErrFenced) {
			return c.fail(err)
		}
		c.logger.Warn("Final checkpoint failed during drain", "error", err)
	}

	c.setState(StateReleased)
	c.logger.Info("Partition released", "last_offset", offset)

	return nil
}

func (c *PartitionConsumer) fail(err error) error {
	c.setState(StateFailed)
	c.logger.Error("Partition failed", "error", err)
	return err
}

// startOffset resolves where to begin pulling. A checkpoint always wins; the
// starting position only picks which retention boundary to fall back to.
func (c *PartitionConsumer) startOffset(
	ctx context.Context, cur checkpoint.Cursor, hasCheckpoint bool,
) (int64, error) {
	if hasCheckpoint {
		return cur.Offset + 1, nil
	}

	earliest, latest, err := c.conn.Offsets(ctx, c.partition)
	if err != nil {
		return 0, err
	}

	if c.config.StartingPosition == StartLatest {
		return latest, nil
	}
	return earliest, nil
}

// pause waits one poll interval. Returns false when the wait was interrupted
// by cancellation or revocation.
func (c *PartitionConsumer) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.revokeCh:
		return false
	case <-time.After(c.config.PollInterval):
		return true
	}
}
