package producer

import (
	"github.com/datateam2/eventstream/transport"
)

type pendingEvent struct {
	data   []byte
	future *Future
}

// openBatch accumulates events for one partition until a cap or the flush
// timer seals it. bytes tracks the encoded batch size so the seal decision
// matches what actually goes on the wire.
type openBatch struct {
	events []pendingEvent
	bytes  int
}

func newOpenBatch() *openBatch {
	return &openBatch{bytes: 2} // empty JSON array
}

func (b *openBatch) len() int {
	return len(b.events)
}

// fits reports whether one more record of n bytes stays within the caps.
// An empty batch accepts any single record that fits the byte cap on its own.
func (b *openBatch) fits(n int, maxCount, maxBytes int) bool {
	if len(b.events) >= maxCount {
		return false
	}
	added := n
	if len(b.events) > 0 {
		added++ // separating comma
	}
	return b.bytes+added <= maxBytes
}

func (b *openBatch) add(pe pendingEvent) {
	if len(b.events) > 0 {
		b.bytes++
	}
	b.bytes += len(pe.data)
	b.events = append(b.events, pe)
}

func (b *openBatch) encode() ([]byte, error) {
	records := make([][]byte, len(b.events))
	for i, pe := range b.events {
		records[i] = pe.data
	}
	return transport.EncodeBatch(records)
}

// resolveAll settles every future in the batch: sequential offsets from the
// ack on success, the shared terminal error otherwise.
func (b *openBatch) resolveAll(partition int32, baseOffset int64, err error) {
	for i, pe := range b.events {
		if err != nil {
			pe.future.resolve(SendResult{Partition: partition, Err: err})
			continue
		}
		pe.future.resolve(SendResult{Partition: partition, Offset: baseOffset + int64(i)})
	}
}

// oversized reports whether a single record of n bytes can never be sent
// under the byte cap. A permanent error, by the batch invariant.
func oversized(n, maxBytes int) bool {
	return transport.EncodedBatchSize([]int{n}) > maxBytes
}
