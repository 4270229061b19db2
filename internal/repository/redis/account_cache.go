package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verisafe/account-integrity/internal/core/port"
)

// AccountCache caches email→user-id lookups with a short TTL. It replaces
// process-wide cached ids: the cache is owned by the service instance and
// entries age out instead of going stale across requests.
type AccountCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewAccountCache constructs a cache using the provided Redis client.
func NewAccountCache(client *redis.Client, keyPrefix string) *AccountCache {
	return &AccountCache{client: client, keyPrefix: keyPrefix}
}

// GetUserID returns the cached user id for the email, if present.
func (c *AccountCache) GetUserID(ctx context.Context, email string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.key(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	return value, true, nil
}

// SetUserID stores the email→user-id mapping for ttl.
func (c *AccountCache) SetUserID(ctx context.Context, email, userID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(email), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *AccountCache) key(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if c.keyPrefix == "" {
		return normalized
	}
	return fmt.Sprintf("%s:%s", c.keyPrefix, normalized)
}

var _ port.AccountCache = (*AccountCache)(nil)
