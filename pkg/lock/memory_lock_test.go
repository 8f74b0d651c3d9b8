package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := lock.NewMemoryStore()
	first := store.Locker("worker-1")
	second := store.Locker("worker-2")

	ok, err := first.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, "exec-1"))

	ok, err = second.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryAcquireExcludesSameOwner(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryStore().Locker("worker-1")

	ok, err := locker.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A second goroutine of the same instance must not get in while the
	// first lease lives.
	ok, err = locker.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "exec-1"))

	ok, err = locker.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryReleaseOnlyFreesOwnAcquisition(t *testing.T) {
	ctx := context.Background()
	store := lock.NewMemoryStore()
	first := store.Locker("worker-1")
	second := store.Locker("worker-2")

	ok, err := first.Acquire(ctx, "exec-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err = second.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired first acquisition cannot free the new holder's lease.
	assert.ErrorIs(t, first.Release(ctx, "exec-1"), lock.ErrNotHeld)
	require.NoError(t, second.Release(ctx, "exec-1"))
}

func TestMemoryExpiredLeaseTakeover(t *testing.T) {
	ctx := context.Background()
	store := lock.NewMemoryStore()
	first := store.Locker("worker-1")
	second := store.Locker("worker-2")

	ok, err := first.Acquire(ctx, "exec-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err = second.Acquire(ctx, "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// The previous holder's lease is gone.
	assert.ErrorIs(t, first.Renew(ctx, "exec-1", time.Minute), lock.ErrNotHeld)
	assert.ErrorIs(t, first.Release(ctx, "exec-1"), lock.ErrNotHeld)
}

func TestMemoryRenewExtendsLease(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryStore().Locker("worker-1")

	ok, err := locker.Acquire(ctx, "exec-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Renew(ctx, "exec-1", time.Minute))

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, locker.Release(ctx, "exec-1"))
}

func TestMemoryReleaseUnknownKey(t *testing.T) {
	locker := lock.NewMemoryStore().Locker("worker-1")

	assert.ErrorIs(t, locker.Release(context.Background(), "missing"), lock.ErrNotHeld)
}
