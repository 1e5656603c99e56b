//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/testutil/containers"
)

func TestRedis_LockExcludesSecondHolder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	client := containers.RedisClient(t)
	ctx := context.Background()
	l := NewRedis(client, RedisConfig{MaxWait: 100 * time.Millisecond}, nil)

	require.NoError(t, l.Health(ctx))

	unlock, err := l.Lock(ctx, "co-1/emp-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "co-1/emp-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock2, err := l.Lock(ctx, "co-1/emp-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_UnlockDoesNotReleaseForeignLease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	client := containers.RedisClient(t)
	ctx := context.Background()
	l := NewRedis(client, RedisConfig{TTL: 50 * time.Millisecond, MaxWait: time.Second}, nil)

	staleUnlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond) // lease expires

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	staleUnlock()

	exists, err := client.Exists(ctx, "vacation:lock:k").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "stale holder must not delete the new lease")
	unlock()
}
