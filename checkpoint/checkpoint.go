// Package checkpoint tracks consumption progress per (partition, group) and
// is the single source of truth for partition ownership. Fencing tokens
// handed out by ClaimOwnership keep a consumer that lost its lease from
// advancing a cursor it no longer owns.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrStaleOffset rejects a commit below the stored offset. Recoverable: the
// committer should re-read the cursor and, if superseded, treat its commit as
// a no-op.
var ErrStaleOffset = errors.New("checkpoint: offset below stored cursor")

// ErrFenced rejects a commit or claim carrying a token that no longer owns
// the partition. The consumer must stop processing the partition immediately.
var ErrFenced = errors.New("checkpoint: ownership fenced")

// Cursor is the durable progress marker for one (partition, group) pair.
type Cursor struct {
	Partition  int32
	Group      string
	Offset     int64
	OwnerToken string
	UpdatedAt  time.Time
}

// Ownership records which consumer instance currently holds a partition.
type Ownership struct {
	Partition int32
	Group     string
	OwnerID   string
	Token     string
	ClaimedAt time.Time
}

// Store persists cursors and ownership. Commit must be durable before it
// returns nil.
type Store interface {
	// Load returns the stored cursor, or ok=false if the pair was never
	// checkpointed.
	Load(ctx context.Context, partition int32, group string) (Cursor, bool, error)

	// Commit writes c.Offset for (c.Partition, c.Group). Fails with
	// ErrFenced unless c.OwnerToken matches the current ownership token,
	// and with ErrStaleOffset if c.Offset is below the stored offset.
	// Committing the stored offset again is a durable no-op.
	Commit(ctx context.Context, c Cursor) error

	// ClaimOwnership makes ownerID the owner of (partition, group) and
	// returns a fresh fencing token, invalidating any previous token.
	ClaimOwnership(ctx context.Context, partition int32, group, ownerID string) (string, error)

	// Ownership returns the current owner of (partition, group), if any.
	Ownership(ctx context.Context, partition int32, group string) (Ownership, bool, error)

	// ResetGroup deletes all cursors and ownership for a group. The only
	// supported deletion.
	ResetGroup(ctx context.Context, group string) error
}
