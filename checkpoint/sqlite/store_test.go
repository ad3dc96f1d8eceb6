//go:build unit

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/checkpoint/sqlite"
)

func newStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := sqlite.NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, path
}

func TestStore_CommitAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	_, ok, err := store.Load(ctx, 3, "group-a")
	require.NoError(t, err)
	require.False(t, ok)

	token, err := store.ClaimOwnership(ctx, 3, "group-a", "consumer-1")
	require.NoError(t, err)

	require.NoError(t, store.Commit(ctx, checkpoint.Cursor{
		Partition: 3, Group: "group-a", Offset: 42, OwnerToken: token,
	}))

	cur, ok, err := store.Load(ctx, 3, "group-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(3), cur.Partition)
	require.Equal(t, "group-a", cur.Group)
	require.Equal(t, int64(42), cur.Offset)
	require.Equal(t, token, cur.OwnerToken)
	require.False(t, cur.UpdatedAt.IsZero())
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := sqlite.NewStore(path)
	require.NoError(t, err)

	token, err := store.ClaimOwnership(ctx, 0, "group-a", "consumer-1")
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 17, OwnerToken: token,
	}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	cur, ok, err := reopened.Load(ctx, 0, "group-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(17), cur.Offset)

	owner, ok, err := reopened.Ownership(ctx, 0, "group-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "consumer-1", owner.OwnerID)
	require.Equal(t, token, owner.Token)
}

func TestStore_FencingAndStaleness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	err := store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 1, OwnerToken: "unclaimed",
	})
	require.ErrorIs(t, err, checkpoint.ErrFenced)

	oldToken, err := store.ClaimOwnership(ctx, 0, "group-a", "consumer-1")
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 30, OwnerToken: oldToken,
	}))

	err = store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 10, OwnerToken: oldToken,
	})
	require.ErrorIs(t, err, checkpoint.ErrStaleOffset)

	newToken, err := store.ClaimOwnership(ctx, 0, "group-a", "consumer-2")
	require.NoError(t, err)

	err = store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 31, OwnerToken: oldToken,
	})
	require.ErrorIs(t, err, checkpoint.ErrFenced)

	require.NoError(t, store.Commit(ctx, checkpoint.Cursor{
		Partition: 0, Group: "group-a", Offset: 31, OwnerToken: newToken,
	}))

	cur, _, err := store.Load(ctx, 0, "group-a")
	require.NoError(t, err)
	require.Equal(t, int64(31), cur.Offset)
}

func TestStore_ResetGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	token, err := store.ClaimOwnership(ctx, 1, "group-a", "consumer-1")
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, checkpoint.Cursor{
		Partition: 1, Group: "group-a", Offset: 5, OwnerToken: token,
	}))

	require.NoError(t, store.ResetGroup(ctx, "group-a"))

	_, ok, err := store.Load(ctx, 1, "group-a")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.Ownership(ctx, 1, "group-a")
	require.NoError(t, err)
	require.False(t, ok)
}
