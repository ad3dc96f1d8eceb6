// Package eventstream is a client core for a partitioned event log: a batch
// producer with bounded retry, partition consumers with durable checkpoints
// and at-least-once delivery, and a consumer-group coordinator that divides
// partitions among members.
//
// The subpackages compose left to right: events (event) are batched and sent
// by the producer (producer) over a transport (transport, transport/kafkatransport),
// pulled back by partition consumers (consumer) that checkpoint progress
// (checkpoint, checkpoint/sqlite) under assignments handed out by the group
// coordinator (coordinator).
//
// This package holds the cross-cutting error taxonomy: KindOf collapses any
// error surfaced by the library into one of a small set of kinds a caller can
// switch on without knowing which layer produced it.
package eventstream

import (
	"errors"

	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/event"
	"github.com/datateam2/eventstream/transport"
)

// Kind classifies an error by how the caller should react, independent of
// which layer produced it.
type Kind int

const (
	// KindUnknown is any error the taxonomy does not recognize.
	KindUnknown Kind = iota

	// KindValidation marks a malformed event. Caller bug; never retried.
	KindValidation

	// KindFormat marks bytes that could not be decoded into an event.
	KindFormat

	// KindTransientTransport marks a network or throttling failure that the
	// library retries internally; it surfaces only after the retry budget.
	KindTransientTransport

	// KindPermanentTransport marks a failure retries cannot fix, such as an
	// auth rejection or an oversized event.
	KindPermanentTransport

	// KindStaleOffset marks a checkpoint commit below the stored cursor.
	// Recoverable: re-read the cursor and no-op if superseded.
	KindStaleOffset

	// KindOwnershipFenced marks a lost partition lease. The consumer must
	// stop processing that partition immediately.
	KindOwnershipFenced
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindFormat:
		return "Format"
	case KindTransientTransport:
		return "TransientTransport"
	case KindPermanentTransport:
		return "PermanentTransport"
	case KindStaleOffset:
		return "StaleOffset"
	case KindOwnershipFenced:
		return "OwnershipFenced"
	default:
		return "Unknown"
	}
}

// KindOf classifies err. Fencing and staleness are checked before transport
// classes so a wrapped checkpoint error keeps its sharper kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, checkpoint.ErrFenced):
		return KindOwnershipFenced
	case errors.Is(err, checkpoint.ErrStaleOffset):
		return KindStaleOffset
	}

	var validationErr *event.ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}

	var formatErr *event.FormatError
	if errors.As(err, &formatErr) {
		return KindFormat
	}

	if transport.IsPermanent(err) {
		return KindPermanentTransport
	}

	var transientErr *transport.TransientError
	if errors.As(err, &transientErr) {
		return KindTransientTransport
	}

	return KindUnknown
}
