// Package mocktransport provides an in-memory Connection for tests: a
// partitioned append-only log with scripted failures and assertion helpers.
package mocktransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datateam2/eventstream/transport"
)

var _ transport.Connection = (*Connection)(nil)

// SentBatch records one successful Send call.
type SentBatch struct {
	Partition  int32
	Batch      []byte
	Records    [][]byte
	BaseOffset int64
}

type Connection struct {
	mu sync.Mutex

	logs       map[int32][]transport.SequencedRecord
	partitions []int32

	sentBatches []SentBatch

	// sendScript errors are consumed one per Send call, across partitions,
	// before the send is applied. A nil entry means success.
	sendScript []error
	sendErr    func(partition int32, batch []byte) error
	pullErr    func(partition int32) error
	pingErr    error
	sendDelay  time.Duration

	closed bool
}

func NewConnection(opts ...Option) *Connection {
	c := &Connection{
		logs: make(map[int32][]transport.SequencedRecord),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.partitions) == 0 {
		c.partitions = []int32{0, 1, 2, 3}
	}
	for _, p := range c.partitions {
		if _, ok := c.logs[p]; !ok {
			c.logs[p] = nil
		}
	}
	return c
}

func (c *Connection) Send(ctx context.Context, partition int32, batch []byte) (transport.Ack, error) {
	if c.sendDelay > 0 {
		select {
		case <-ctx.Done():
			return transport.Ack{}, transport.Transient(ctx.Err())
		case <-time.After(c.sendDelay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.Ack{}, transport.Permanent(errors.New("connection closed"))
	}
	if _, ok := c.logs[partition]; !ok {
		return transport.Ack{}, transport.Permanent(fmt.Errorf("unknown partition %d", partition))
	}

	if len(c.sendScript) > 0 {
		err := c.sendScript[0]
		c.sendScript = c.sendScript[1:]
		if err != nil {
			return transport.Ack{}, err
		}
	}
	if c.sendErr != nil {
		if err := c.sendErr(partition, batch); err != nil {
			return transport.Ack{}, err
		}
	}

	records, err := transport.DecodeBatch(batch)
	if err != nil {
		return transport.Ack{}, transport.Permanent(fmt.Errorf("undecodable batch: %w", err))
	}

	base := int64(len(c.logs[partition]))
	now := time.Now().UTC()
	for _, rec := range records {
		c.logs[partition] = append(c.logs[partition], transport.SequencedRecord{
			Offset:     int64(len(c.logs[partition])),
			Data:       rec,
			EnqueuedAt: now,
		})
	}

	c.sentBatches = append(c.sentBatches, SentBatch{
		Partition:  partition,
		Batch:      batch,
		Records:    records,
		BaseOffset: base,
	})

	return transport.Ack{Partition: partition, BaseOffset: base}, nil
}

func (c *Connection) Pull(
	ctx context.Context, partition int32, fromOffset int64, maxRecords int,
) ([]transport.SequencedRecord, error) {
	select {
	case <-ctx.Done():
		return nil, transport.Transient(ctx.Err())
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, transport.Permanent(errors.New("connection closed"))
	}
	if c.pullErr != nil {
		if err := c.pullErr(partition); err != nil {
			return nil, err
		}
	}

	log, ok := c.logs[partition]
	if !ok {
		return nil, transport.Permanent(fmt.Errorf("unknown partition %d", partition))
	}

	start := fromOffset
	switch fromOffset {
	case transport.OffsetEarliest:
		start = 0
	case transport.OffsetLatest:
		start = int64(len(log))
	}
	if start < 0 || start >= int64(len(log)) {
		return nil, nil
	}

	end := start + int64(maxRecords)
	if end > int64(len(log)) {
		end = int64(len(log))
	}

	out := make([]transport.SequencedRecord, end-start)
	copy(out, log[start:end])
	return out, nil
}

func (c *Connection) Offsets(ctx context.Context, partition int32) (int64, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, 0, transport.Permanent(errors.New("connection closed"))
	}
	log, ok := c.logs[partition]
	if !ok {
		return 0, 0, transport.Permanent(fmt.Errorf("unknown partition %d", partition))
	}
	return 0, int64(len(log)), nil
}

func (c *Connection) Partitions(ctx context.Context) ([]int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int32{}, c.partitions...), nil
}

func (c *Connection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.Permanent(errors.New("connection closed"))
	}
	return c.pingErr
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Append seeds the partition log directly, bypassing Send. Returns the offset
// of the first appended record.
func (c *Connection) Append(partition int32, data ...[]byte) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := int64(len(c.logs[partition]))
	now := time.Now().UTC()
	for _, d := range data {
		c.logs[partition] = append(c.logs[partition], transport.SequencedRecord{
			Offset:     int64(len(c.logs[partition])),
			Data:       d,
			EnqueuedAt: now,
		})
	}
	return base
}

// SentBatches returns all successfully sent batches in send order.
func (c *Connection) SentBatches() []SentBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentBatch{}, c.sentBatches...)
}

// Log returns a copy of the stored records for a partition.
func (c *Connection) Log(partition int32) []transport.SequencedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.SequencedRecord{}, c.logs[partition]...)
}

// RemainingSendScript reports how many scripted send results are unconsumed.
func (c *Connection) RemainingSendScript() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sendScript)
}
