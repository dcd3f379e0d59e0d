package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLock(t *testing.T) {
	ctx := context.Background()

	t.Run("Mutual exclusion", func(t *testing.T) {
		_, client := newRedis(t)
		a := NewDistributedLock(client, "k", "a", time.Minute)
		b := NewDistributedLock(client, "k", "b", time.Minute)

		ok, err := a.TryLock(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.TryLock(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, a.Unlock(ctx))
		ok, err = b.TryLock(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Unlock leaves a foreign holder alone", func(t *testing.T) {
		mr, client := newRedis(t)
		a := NewDistributedLock(client, "k", "a", time.Minute)
		b := NewDistributedLock(client, "k", "b", time.Minute)

		ok, err := b.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, a.Unlock(ctx))
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "b", got)
	})

	t.Run("Lock gives up after retries", func(t *testing.T) {
		_, client := newRedis(t)
		holder := NewDistributedLock(client, "k", "a", time.Minute)
		_, err := holder.TryLock(ctx)
		require.NoError(t, err)

		waiter := NewDistributedLock(client, "k", "b", time.Minute)
		err = waiter.Lock(ctx, time.Millisecond, 3)
		assert.ErrorIs(t, err, ErrLockFailed)
	})

	t.Run("Expired lock can be retaken", func(t *testing.T) {
		mr, client := newRedis(t)
		a := NewDistributedLock(client, "k", "a", time.Second)
		_, err := a.TryLock(ctx)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		ok, err := NewDistributedLock(client, "k", "b", time.Second).TryLock(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestManagerObtain(t *testing.T) {
	mr, client := newRedis(t)
	m := NewManager(client, time.Minute)
	m.retryInterval = time.Millisecond
	m.maxRetries = 2

	release, err := m.Obtain(context.Background(), WithdrawKey(42))
	require.NoError(t, err)
	assert.True(t, mr.Exists("withdraw:lock:user:42"))

	_, err = m.Obtain(context.Background(), WithdrawKey(42))
	assert.ErrorIs(t, err, ErrLockFailed)

	release()
	assert.False(t, mr.Exists("withdraw:lock:user:42"))
}
