//go:build unit

package consumer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/consumer"
	"github.com/datateam2/eventstream/coordinator"
	"github.com/datateam2/eventstream/event"
	mocktransport "github.com/datateam2/eventstream/transport/mock"
)

func groupOpts(id string) []consumer.Option {
	return []consumer.Option{
		consumer.WithGroup("group-a"),
		consumer.WithConsumerID(id),
		consumer.WithStartingPosition(consumer.StartEarliest),
		consumer.WithPollInterval(5 * time.Millisecond),
		consumer.WithHeartbeatInterval(10 * time.Millisecond),
		consumer.WithRevokeTimeout(2 * time.Second),
	}
}

func TestGroup_TwoMembersSplitPartitionsExclusively(t *testing.T) {
	t.Parallel()

	conn := mocktransport.NewConnection(mocktransport.WithPartitions(4))
	store := checkpoint.NewMemoryStore()
	coord := coordinator.New("group-a", []int32{0, 1, 2, 3})

	var mu sync.Mutex
	seenBy := make(map[string]map[string]bool) // event id -> member ids
	process := func(member string) consumer.ProcessFunc {
		return func(_ context.Context, _ consumer.PartitionContext, ev event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			if seenBy[ev.ID] == nil {
				seenBy[ev.ID] = make(map[string]bool)
			}
			seenBy[ev.ID][member] = true
			return nil
		}
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	g1 := consumer.NewGroup(conn, store, coord, process("m1"), groupOpts("m1")...)
	g2 := consumer.NewGroup(conn, store, coord, process("m2"), groupOpts("m2")...)

	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() { defer close(done1); g1.Run(ctx1) }()
	go func() { defer close(done2); g2.Run(ctx2) }()

	require.Eventually(t, func() bool {
		assignment := coord.Assignment()
		return len(assignment["m1"]) == 2 && len(assignment["m2"]) == 2
	}, 3*time.Second, 10*time.Millisecond)

	var expected []string
	for p := int32(0); p < 4; p++ {
		expected = append(expected, seedEvents(t, conn, p, 2)...)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seenBy) == len(expected)
	}, 3*time.Second, 10*time.Millisecond)

	// Exclusive ownership: no event was processed by both members.
	mu.Lock()
	for id, members := range seenBy {
		require.Len(t, members, 1, "event %s processed by multiple members", id)
	}
	mu.Unlock()

	// One member leaving hands its partitions to the survivor.
	cancel1()
	<-done1

	require.Eventually(t, func() bool {
		assignment := coord.Assignment()
		return len(assignment) == 1 && len(assignment["m2"]) == 4
	}, 3*time.Second, 10*time.Millisecond)

	more := seedEvents(t, conn, 0, 1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seenBy[more[0]]["m2"]
	}, 3*time.Second, 10*time.Millisecond)
}

func TestGroup_ResumesFromCommittedCheckpoints(t *testing.T) {
	t.Parallel()

	conn := mocktransport.NewConnection(mocktransport.WithPartitions(2))
	store := checkpoint.NewMemoryStore()

	var mu sync.Mutex
	counts := make(map[string]int)
	process := func(_ context.Context, _ consumer.PartitionContext, ev event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		counts[ev.ID]++
		return nil
	}

	first := seedEvents(t, conn, 0, 3)
	second := seedEvents(t, conn, 1, 3)
	total := len(first) + len(second)

	run := func() {
		ctx, cancel := context.WithCancel(context.Background())
		coord := coordinator.New("group-a", []int32{0, 1})
		g := consumer.NewGroup(conn, store, coord, process, groupOpts("m1")...)
		done := make(chan struct{})
		go func() { defer close(done); g.Run(ctx) }()

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(counts) == total
		}, 3*time.Second, 10*time.Millisecond)

		// Let the consumers idle a few poll cycles so any wrongly repeated
		// delivery would show up before shutdown.
		time.Sleep(100 * time.Millisecond)

		cancel()
		<-done
	}

	run()
	run()

	// A clean restart re-delivers nothing below the committed offsets.
	mu.Lock()
	defer mu.Unlock()
	for id, n := range counts {
		require.Equal(t, 1, n, "event %s delivered %d times", id, n)
	}
}
