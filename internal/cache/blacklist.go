package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistValue = "blacklisted"

// Blacklist records revoked access tokens until they would have expired on
// their own.
type Blacklist struct {
	client redis.Cmdable
	prefix string
}

func NewBlacklist(client redis.Cmdable, keyPrefix string) *Blacklist {
	return &Blacklist{
		client: client,
		prefix: keyPrefix + "blacklist:",
	}
}

// Revoke stores token for ttl. A non-positive ttl means the token has already
// expired and nothing is written.
func (b *Blacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	const op = "cache.Blacklist.Revoke"

	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.prefix+token, blacklistValue, ttl).Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	const op = "cache.Blacklist.IsRevoked"

	val, err := b.client.Get(ctx, b.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable(op, err)
	}
	return val == blacklistValue, nil
}
