// Package producer accumulates events into partition-bound batches and sends
// them with bounded retry. Sends for one partition are serialized to keep
// producer-side ordering; different partitions send concurrently.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/datateam2/eventstream/event"
	"github.com/datateam2/eventstream/logger"
	streamotel "github.com/datateam2/eventstream/otel"
	"github.com/datateam2/eventstream/transport"
)

var (
	// ErrClosed rejects submissions after Close.
	ErrClosed = errors.New("producer: closed")
	// ErrEventTooLarge marks a single event that can never fit the byte cap.
	ErrEventTooLarge = errors.New("producer: event exceeds max batch bytes")
)

type Producer struct {
	conn       transport.Connection
	config     Config
	partitions []int32
	senders    map[int32]*partitionSender

	rr atomic.Uint64

	runCtx context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	logger    logger.Logger
	telemetry *streamotel.Telemetry
}

// New builds a producer over the connection, with one send loop per
// partition of the log.
func New(ctx context.Context, conn transport.Connection, opts ...Option) (*Producer, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	partitions, err := conn.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover partitions: %w", err)
	}
	if len(partitions) == 0 {
		return nil, errors.New("producer: log has no partitions")
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	runCtx, cancel := context.WithCancel(context.Background())

	p := &Producer{
		conn:       conn,
		config:     config,
		partitions: partitions,
		senders:    make(map[int32]*partitionSender, len(partitions)),
		runCtx:     runCtx,
		cancel:     cancel,
		logger:     config.Logger,
		telemetry:  config.Telemetry,
	}

	for _, partition := range partitions {
		s := newPartitionSender(partition, conn, config, p.telemetry)
		p.senders[partition] = s
		p.wg.Add(1)
		go s.run(runCtx, &p.wg)
	}

	p.logger.Info("Producer started", "partitions", len(partitions))

	return p, nil
}

// Submit validates and enqueues an event, routing round-robin across
// partitions. The returned future resolves when the containing batch lands
// or fails terminally. Blocks when the partition queue is full.
func (p *Producer) Submit(ctx context.Context, ev event.Event) (*Future, error) {
	n := p.rr.Add(1)
	partition := p.partitions[(n-1)%uint64(len(p.partitions))]
	return p.submit(ctx, partition, ev)
}

// SubmitWithKey routes the event by a deterministic hash of the partition
// key, so events sharing a key share a partition and thus an order.
func (p *Producer) SubmitWithKey(ctx context.Context, key string, ev event.Event) (*Future, error) {
	return p.submit(ctx, partitionForKey(key, p.partitions), ev)
}

func (p *Producer) submit(ctx context.Context, partition int32, ev event.Event) (*Future, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	data, err := ev.Marshal()
	if err != nil {
		return nil, err
	}

	if oversized(len(data), p.config.MaxBatchBytes) {
		p.logger.Warn("Rejecting oversized event", "event_id", ev.ID, "bytes", len(data))
		return resolvedFuture(SendResult{
			Partition: partition,
			Err:       transport.Permanent(fmt.Errorf("%w: %d bytes", ErrEventTooLarge, len(data))),
		}), nil
	}

	pe := pendingEvent{data: data, future: newFuture()}
	sender := p.senders[partition]

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.runCtx.Done():
		return nil, ErrClosed
	case sender.inCh <- pe:
		return pe.future, nil
	}
}

// Flush seals and sends every open batch, blocking until all outstanding
// sends complete or fail terminally.
func (p *Producer) Flush(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, s := range p.senders {
		wg.Add(1)
		go func(s *partitionSender) {
			defer wg.Done()
			if err := s.flush(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("partition %d: %w", s.partition, err))
				mu.Unlock()
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return errors.Join(errs...)
	}
}

// Close flushes remaining batches, stops the send loops, and releases the
// transport. No batch is silently dropped on a clean shutdown; the context
// bounds the grace period before loops are forced down.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	flushErr := p.Flush(ctx)

	for _, s := range p.senders {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("Timeout waiting for send loops, forcing shutdown")
	}
	p.cancel()
	<-done

	closeErr := p.conn.Close()

	p.logger.Info("Producer closed")

	return errors.Join(flushErr, closeErr)
}

type flushRequest struct {
	reply chan error
}

// partitionSender owns all batching and sending for one partition. Running
// the send inline in the loop serializes sends per partition.
type partitionSender struct {
	partition int32
	conn      transport.Connection
	config    Config

	inCh    chan pendingEvent
	flushCh chan flushRequest
	stopCh  chan struct{}

	stopOnce sync.Once

	logger    logger.Logger
	telemetry *streamotel.Telemetry
}

func newPartitionSender(
	partition int32, conn transport.Connection, config Config, telemetry *streamotel.Telemetry,
) *partitionSender {
	return &partitionSender{
		partition: partition,
		conn:      conn,
		config:    config,
		inCh:      make(chan pendingEvent, config.QueueSize),
		flushCh:   make(chan flushRequest),
		stopCh:    make(chan struct{}),
		logger:    config.Logger.With("partition", partition),
		telemetry: telemetry,
	}
}

func (s *partitionSender) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	var open *openBatch

	timer := time.NewTimer(s.config.FlushInterval)
	stopTimer(timer)

	seal := func() {
		if open == nil {
			return
		}
		stopTimer(timer)
		s.send(ctx, open)
		open = nil
	}

	for {
		select {
		case <-ctx.Done():
			s.drain(open)
			return

		case <-s.stopCh:
			// Graceful stop: whatever is queued still goes out.
			for {
				select {
				case pe := <-s.inCh:
					if open == nil {
						open = newOpenBatch()
					}
					if !open.fits(len(pe.data), s.config.MaxBatchCount, s.config.MaxBatchBytes) {
						seal()
						open = newOpenBatch()
					}
					open.add(pe)
				default:
					seal()
					return
				}
			}

		case pe := <-s.inCh:
			if open == nil {
				open = newOpenBatch()
				timer.Reset(s.config.FlushInterval)
			}
			if !open.fits(len(pe.data), s.config.MaxBatchCount, s.config.MaxBatchBytes) {
				seal()
				open = newOpenBatch()
				timer.Reset(s.config.FlushInterval)
			}
			open.add(pe)
			if open.len() >= s.config.MaxBatchCount {
				seal()
			}

		case <-timer.C:
			if open != nil {
				s.send(ctx, open)
				open = nil
			}

		case req := <-s.flushCh:
			// Settle queued events first so a flush covers everything
			// submitted before it.
			for more := true; more; {
				select {
				case pe := <-s.inCh:
					if open == nil {
						open = newOpenBatch()
					}
					if !open.fits(len(pe.data), s.config.MaxBatchCount, s.config.MaxBatchBytes) {
						seal()
						open = newOpenBatch()
					}
					open.add(pe)
				default:
					more = false
				}
			}
			var err error
			if open != nil {
				stopTimer(timer)
				err = s.send(ctx, open)
				open = nil
			}
			req.reply <- err
		}
	}
}

// send seals the batch and pushes it to the log, retrying transient failures
// with exponential backoff. Resolves every contained future exactly once.
func (s *partitionSender) send(ctx context.Context, b *openBatch) error {
	payload, err := b.encode()
	if err != nil {
		err = transport.Permanent(fmt.Errorf("encode batch: %w", err))
		b.resolveAll(s.partition, 0, err)
		return err
	}

	state := newRetryState(s.config.Retry)
	for {
		ack, sendErr := s.conn.Send(ctx, s.partition, payload)

		outcome, delay := state.next(sendErr)
		switch outcome {
		case outcomeSuccess:
			b.resolveAll(s.partition, ack.BaseOffset, nil)
			s.telemetry.BatchesSent.Add(ctx, 1, metric.WithAttributes(
				streamotel.AttrPartition.Int(int(s.partition)),
				streamotel.AttrSendStatus.String(streamotel.StatusSuccess),
			))
			s.telemetry.EventsProduced.Add(ctx, int64(b.len()), metric.WithAttributes(
				streamotel.AttrPartition.Int(int(s.partition)),
			))
			s.logger.Debug("Batch sent", "events", b.len(), "base_offset", ack.BaseOffset)
			return nil

		case outcomeRetry:
			s.telemetry.SendRetries.Add(ctx, 1, metric.WithAttributes(
				streamotel.AttrPartition.Int(int(s.partition)),
			))
			s.logger.Warn(
				"Transient send failure, backing off",
				"error", sendErr,
				"attempt", state.Attempts(),
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				err := transport.Transient(fmt.Errorf("send cancelled: %w", ctx.Err()))
				b.resolveAll(s.partition, 0, err)
				return err
			case <-time.After(delay):
			}

		case outcomeFail:
			s.telemetry.BatchesSent.Add(ctx, 1, metric.WithAttributes(
				streamotel.AttrPartition.Int(int(s.partition)),
				streamotel.AttrSendStatus.String(streamotel.StatusFailed),
			))
			s.logger.Error(
				"Batch failed terminally",
				"error", sendErr,
				"attempts", state.Attempts(),
				"events", b.len(),
			)
			b.resolveAll(s.partition, 0, sendErr)
			return sendErr
		}
	}
}

// drain resolves everything still pending with ErrClosed. Only reached on a
// forced (context-cancelled) shutdown.
func (s *partitionSender) drain(open *openBatch) {
	if open != nil {
		open.resolveAll(s.partition, 0, ErrClosed)
	}
	for {
		select {
		case pe := <-s.inCh:
			pe.future.resolve(SendResult{Partition: s.partition, Err: ErrClosed})
		default:
			return
		}
	}
}

func (s *partitionSender) flush(ctx context.Context) error {
	req := flushRequest{reply: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrClosed
	case s.flushCh <- req:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.reply:
		return err
	}
}

func (s *partitionSender) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
