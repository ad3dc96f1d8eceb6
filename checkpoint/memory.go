package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

type pairKey struct {
	partition int32
	group     string
}

// MemoryStore keeps cursors and ownership in process memory. Suitable for
// tests and single-process deployments; use the sqlite store when checkpoints
// must survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[pairKey]Cursor
	owners  map[pairKey]Ownership
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors: make(map[pairKey]Cursor),
		owners:  make(map[pairKey]Ownership),
	}
}

func (s *MemoryStore) Load(ctx context.Context, partition int32, group string) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[pairKey{partition, group}]
	return c, ok, nil
}

func (s *MemoryStore) Commit(ctx context.Context, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{c.Partition, c.Group}

	owner, ok := s.owners[key]
	if !ok || owner.Token != c.OwnerToken {
		return ErrFenced
	}
	if stored, ok := s.cursors[key]; ok && c.Offset < stored.Offset {
		return ErrStaleOffset
	}

	c.UpdatedAt = time.Now().UTC()
	s.cursors[key] = c
	return nil
}

func (s *MemoryStore) ClaimOwnership(ctx context.Context, partition int32, group, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.owners[pairKey{partition, group}] = Ownership{
		Partition: partition,
		Group:     group,
		OwnerID:   ownerID,
		Token:     token,
		ClaimedAt: time.Now().UTC(),
	}
	return token, nil
}

func (s *MemoryStore) Ownership(ctx context.Context, partition int32, group string) (Ownership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.owners[pairKey{partition, group}]
	return o, ok, nil
}

func (s *MemoryStore) ResetGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.cursors {
		if key.group == group {
			delete(s.cursors, key)
		}
	}
	for key := range s.owners {
		if key.group == group {
			delete(s.owners, key)
		}
	}
	return nil
}
