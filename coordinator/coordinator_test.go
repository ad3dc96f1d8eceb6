//go:build unit

package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/coordinator"
)

// fakeListener records assignment changes and the order in which callbacks
// fired across all members sharing the same journal.
type fakeListener struct {
	id      string
	journal *journal

	mu    sync.Mutex
	owned map[int32]bool
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) record(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string{}, j.entries...)
}

func newFakeListener(id string, j *journal) *fakeListener {
	return &fakeListener{id: id, journal: j, owned: make(map[int32]bool)}
}

func (l *fakeListener) OnAssigned(_ context.Context, partitions []int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range partitions {
		l.owned[p] = true
	}
	l.journal.record(l.id + ":assign")
}

func (l *fakeListener) OnRevoked(_ context.Context, partitions []int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range partitions {
		delete(l.owned, p)
	}
	l.journal.record(l.id + ":revoke")
}

func (l *fakeListener) ownedPartitions() map[int32]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int32]bool, len(l.owned))
	for p := range l.owned {
		out[p] = true
	}
	return out
}

func TestCoordinator_JoinAssignsAllPartitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coord := coordinator.New("group-a", partitions(4))
	l := newFakeListener("a", &journal{})

	require.NoError(t, coord.Join(ctx, "a", l))
	require.Len(t, l.ownedPartitions(), 4)

	assignment := coord.Assignment()
	require.Len(t, assignment["a"], 4)

	require.ErrorIs(t, coord.Join(ctx, "a", l), coordinator.ErrAlreadyJoined)
}

func TestCoordinator_RevokeBeforeAssignOnJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j := &journal{}
	coord := coordinator.New("group-a", partitions(4))

	a := newFakeListener("a", j)
	require.NoError(t, coord.Join(ctx, "a", a))

	b := newFakeListener("b", j)
	require.NoError(t, coord.Join(ctx, "b", b))

	// a must give up its surplus before b receives anything.
	entries := j.all()
	require.Equal(t, []string{"a:assign", "a:revoke", "b:assign"}, entries)

	require.Len(t, a.ownedPartitions(), 2)
	require.Len(t, b.ownedPartitions(), 2)

	for p := range b.ownedPartitions() {
		require.False(t, a.ownedPartitions()[p], "partition %d owned by both members", p)
	}
}

func TestCoordinator_LeaveReassignsToSurvivors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j := &journal{}
	coord := coordinator.New("group-a", partitions(6))

	a := newFakeListener("a", j)
	b := newFakeListener("b", j)
	require.NoError(t, coord.Join(ctx, "a", a))
	require.NoError(t, coord.Join(ctx, "b", b))

	require.NoError(t, coord.Leave(ctx, "b"))
	require.Len(t, a.ownedPartitions(), 6)

	assignment := coord.Assignment()
	require.NotContains(t, assignment, "b")

	require.ErrorIs(t, coord.Leave(ctx, "b"), coordinator.ErrUnknownMember)
}

func TestCoordinator_HeartbeatTimeoutExpiresMember(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &journal{}
	coord := coordinator.New("group-a", partitions(4),
		coordinator.WithSessionTimeout(50*time.Millisecond),
		coordinator.WithSweepInterval(10*time.Millisecond),
	)
	go coord.Run(ctx)

	a := newFakeListener("a", j)
	b := newFakeListener("b", j)
	require.NoError(t, coord.Join(ctx, "a", a))
	require.NoError(t, coord.Join(ctx, "b", b))

	// Only a keeps heartbeating; b goes silent and must be expired.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				coord.Heartbeat("a")
			}
		}
	}()
	defer close(stop)

	require.Eventually(t, func() bool {
		return len(a.ownedPartitions()) == 4
	}, 2*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, coord.Heartbeat("b"), coordinator.ErrUnknownMember)

	assignment := coord.Assignment()
	require.Len(t, assignment, 1)
	require.Len(t, assignment["a"], 4)
}

func TestCoordinator_HeartbeatUnknownMember(t *testing.T) {
	t.Parallel()

	coord := coordinator.New("group-a", partitions(2))
	require.ErrorIs(t, coord.Heartbeat("ghost"), coordinator.ErrUnknownMember)
}
