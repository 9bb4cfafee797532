package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBlacklist_RevokeAndCheck(t *testing.T) {
	mr, client := newTestRedis(t)
	bl := NewBlacklist(client, "jobboard:")
	ctx := context.Background()

	revoked, err := bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, "tok", 30*time.Second))

	revoked, err = bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	val, err := mr.Get("jobboard:blacklist:tok")
	require.NoError(t, err)
	assert.Equal(t, "blacklisted", val)
	assert.Equal(t, 30*time.Second, mr.TTL("jobboard:blacklist:tok"))
}

func TestBlacklist_EntryExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	bl := NewBlacklist(client, "")
	ctx := context.Background()

	require.NoError(t, bl.Revoke(ctx, "tok", 2*time.Second))
	mr.FastForward(3 * time.Second)

	revoked, err := bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestBlacklist_NonPositiveTTLIsNoop(t *testing.T) {
	mr, client := newTestRedis(t)
	bl := NewBlacklist(client, "")
	ctx := context.Background()

	require.NoError(t, bl.Revoke(ctx, "expired", 0))
	require.NoError(t, bl.Revoke(ctx, "expired", -time.Second))

	assert.False(t, mr.Exists("blacklist:expired"))
}

func TestBlacklist_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	bl := NewBlacklist(client, "")
	mr.Close()

	ctx := context.Background()
	_, err := bl.IsRevoked(ctx, "tok")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = bl.Revoke(ctx, "tok", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client, "jobboard:")
	ctx := context.Background()

	unlock, err := locker.TryLock(ctx, "refresh:u1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("jobboard:lock:refresh:u1"))

	_, err = locker.TryLock(ctx, "refresh:u1", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.TryLock(ctx, "refresh:u2", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("jobboard:lock:refresh:u1"))

	again, err := locker.TryLock(ctx, "refresh:u1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocker_ReleaseKeepsForeignOwner(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	unlock, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	second, err := locker.TryLock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	// stale release must not drop the new owner's lock
	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("lock:k"))

	require.NoError(t, second(ctx))
	assert.False(t, mr.Exists("lock:k"))
}
