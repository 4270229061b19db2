package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestAccountCache_SetAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewAccountCache(client, "acct:account-email")

	ctx := context.Background()
	ttl := 5 * time.Minute

	if err := cache.SetUserID(ctx, "buyer@example.com", "user-1", ttl); err != nil {
		t.Fatalf("SetUserID returned error: %v", err)
	}

	userID, hit, err := cache.GetUserID(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("GetUserID returned error: %v", err)
	}
	if !hit || userID != "user-1" {
		t.Fatalf("expected cached user-1, got hit=%v id=%s", hit, userID)
	}

	remaining := server.TTL("acct:account-email:buyer@example.com")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestAccountCache_NormalizesEmailKey(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewAccountCache(client, "acct:account-email")

	ctx := context.Background()

	if err := cache.SetUserID(ctx, "  Buyer@Example.com ", "user-1", time.Minute); err != nil {
		t.Fatalf("SetUserID returned error: %v", err)
	}

	userID, hit, err := cache.GetUserID(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("GetUserID returned error: %v", err)
	}
	if !hit || userID != "user-1" {
		t.Fatalf("expected normalized key hit, got hit=%v id=%s", hit, userID)
	}
}

func TestAccountCache_MissAfterExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewAccountCache(client, "acct:account-email")

	ctx := context.Background()

	if _, hit, err := cache.GetUserID(ctx, "nobody@example.com"); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	if err := cache.SetUserID(ctx, "buyer@example.com", "user-1", time.Minute); err != nil {
		t.Fatalf("SetUserID returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, hit, err := cache.GetUserID(ctx, "buyer@example.com"); err != nil || hit {
		t.Fatalf("expected expired entry to miss, got hit=%v err=%v", hit, err)
	}
}
