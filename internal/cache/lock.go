package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another caller")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.Cmdable
	prefix string
}

func NewLocker(client redis.Cmdable, keyPrefix string) *Locker {
	return &Locker{
		client: client,
		prefix: keyPrefix + "lock:",
	}
}

// TryLock acquires key for at most ttl without waiting. It returns
// ErrLockHeld when another caller owns the key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	const op = "cache.Locker.TryLock"

	fullKey := l.prefix + key
	owner := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		const op = "cache.Locker.Release"

		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, owner).Err(); err != nil {
			return unavailable(op, err)
		}
		return nil
	}
	return release, nil
}
