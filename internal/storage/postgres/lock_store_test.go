package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockStore_AcquireDenyExpire(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	ok, err := store.TryAcquire(ctx, "BTCUSDT:1h:abc", "holder-a", 10_000, 1000)
	require.NoError(t, err)
	assert.True(t, ok)

	// Denied while the lease is valid.
	ok, err = store.TryAcquire(ctx, "BTCUSDT:1h:abc", "holder-b", 10_000, 2000)
	require.NoError(t, err)
	assert.False(t, ok)

	// Granted once the lease has expired.
	ok, err = store.TryAcquire(ctx, "BTCUSDT:1h:abc", "holder-b", 30_000, 11_000)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := store.Get(ctx, "BTCUSDT:1h:abc")
	require.NoError(t, err)
	assert.Equal(t, "holder-b", l.HolderID)
}

func TestLockStore_RenewExtendsLease(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	ok, err := store.TryAcquire(ctx, "res", "holder-a", 5000, 1000)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryAcquire(ctx, "res", "holder-a", 9000, 2000)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := store.Get(ctx, "res")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), l.ExpiresAtMs)
}

func TestLockStore_ReleaseFreesLock(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	ok, err := store.TryAcquire(ctx, "res", "holder-a", 60_000, 1000)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "res", "holder-b")) // non-holder no-op
	ok, err = store.TryAcquire(ctx, "res", "holder-c", 60_000, 1000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, "res", "holder-a"))
	ok, err = store.TryAcquire(ctx, "res", "holder-c", 60_000, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockStore_ConcurrentAcquireGrantsOne(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLockStore(pool)

	const workers = 16
	var granted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, err := store.TryAcquire(ctx, "contested", string(rune('a'+id)), 60_000, 1000)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}
