// Package transport defines the boundary to the partitioned log service.
// Implementations live in subpackages; the rest of the library treats a
// Connection as an opaque collaborator whose failures are either transient
// (retryable) or permanent.
package transport

import (
	"context"
	"time"
)

// Offset sentinels accepted by Pull as fromOffset.
const (
	OffsetEarliest int64 = -2
	OffsetLatest   int64 = -1
)

// Ack reports where a batch landed in the log.
type Ack struct {
	Partition  int32
	BaseOffset int64
}

// SequencedRecord is one event as stored in the log.
type SequencedRecord struct {
	Offset     int64
	Data       []byte
	EnqueuedAt time.Time
}

// Connection is a handle to the log service shared by producers and
// consumers. Send accepts or rejects a batch atomically. Pull returns up to
// maxRecords records starting at fromOffset (or an offset sentinel). Offsets
// reports the retention boundaries of a partition: the earliest stored offset
// and the offset the next record will take.
type Connection interface {
	Send(ctx context.Context, partition int32, batch []byte) (Ack, error)
	Pull(ctx context.Context, partition int32, fromOffset int64, maxRecords int) ([]SequencedRecord, error)
	Offsets(ctx context.Context, partition int32) (earliest, latest int64, err error)
	Partitions(ctx context.Context) ([]int32, error)
	Ping(ctx context.Context) error
	Close() error
}
