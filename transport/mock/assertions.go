package mocktransport

import (
	"testing"

	"github.com/datateam2/eventstream/event"
)

// AssertSentCount fails the test unless exactly n batches were sent.
func (c *Connection) AssertSentCount(tb testing.TB, n int) {
	tb.Helper()
	if got := len(c.SentBatches()); got != n {
		tb.Errorf("expected %d sent batches, got %d", n, got)
	}
}

// AssertStoredEventIDs fails the test unless the partition log contains
// exactly the given event ids in order.
func (c *Connection) AssertStoredEventIDs(tb testing.TB, partition int32, ids ...string) {
	tb.Helper()

	log := c.Log(partition)
	if len(log) != len(ids) {
		tb.Errorf("partition %d: expected %d records, got %d", partition, len(ids), len(log))
		return
	}
	for i, rec := range log {
		ev, err := event.Unmarshal(rec.Data)
		if err != nil {
			tb.Errorf("partition %d offset %d: undecodable record: %v", partition, rec.Offset, err)
			return
		}
		if ev.ID != ids[i] {
			tb.Errorf("partition %d offset %d: expected event %q, got %q", partition, rec.Offset, ids[i], ev.ID)
		}
	}
}

// AssertBatchSizes fails the test unless sent batches had the given record
// counts, in send order.
func (c *Connection) AssertBatchSizes(tb testing.TB, sizes ...int) {
	tb.Helper()

	batches := c.SentBatches()
	if len(batches) != len(sizes) {
		tb.Errorf("expected %d sent batches, got %d", len(sizes), len(batches))
		return
	}
	for i, b := range batches {
		if len(b.Records) != sizes[i] {
			tb.Errorf("batch %d: expected %d records, got %d", i, sizes[i], len(b.Records))
		}
	}
}
