package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verisafe/account-integrity/internal/core/port"
)

// AlertSuppressionStore deduplicates repeat alerts using SET NX with a TTL.
// A blocked email hammering the login path raises one alert per suppression
// window instead of one per attempt.
type AlertSuppressionStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewAlertSuppressionStore constructs a store using the provided Redis client.
func NewAlertSuppressionStore(client *redis.Client, keyPrefix string) *AlertSuppressionStore {
	return &AlertSuppressionStore{client: client, keyPrefix: keyPrefix}
}

// FirstWithin reports whether this caller won the suppression slot for the
// key. The slot self-expires after ttl.
func (s *AlertSuppressionStore) FirstWithin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}

	acquired, err := s.client.SetNX(ctx, s.key(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return acquired, nil
}

func (s *AlertSuppressionStore) key(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, key)
}

var _ port.AlertSuppressor = (*AlertSuppressionStore)(nil)
