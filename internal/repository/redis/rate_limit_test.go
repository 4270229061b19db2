package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_RecordAndCount(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "acct:http-rate", TTL: 2 * time.Minute})

	ctx := context.Background()
	now := time.Now().UTC()
	window := time.Minute

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "api:192.0.2.1", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "api:192.0.2.1", window, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}

	remaining := server.TTL("acct:http-rate:api:192.0.2.1")
	if remaining <= 0 || remaining > 2*time.Minute {
		t.Fatalf("expected ttl within (0, 2m], got %v", remaining)
	}
}

func TestRateLimitRepository_TrimWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "acct:http-rate"})

	ctx := context.Background()
	now := time.Now().UTC()
	window := time.Minute

	if err := repo.RecordAttempt(ctx, "api:192.0.2.1", now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "api:192.0.2.1", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := repo.TrimWindow(ctx, "api:192.0.2.1", window, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "api:192.0.2.1", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected stale attempt trimmed, got %d", count)
	}
}

func TestRateLimitRepository_OldestAttempt(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "acct:http-rate"})

	ctx := context.Background()
	now := time.Now().UTC()
	window := time.Minute
	oldest := now.Add(-30 * time.Second)

	if _, found, err := repo.OldestAttempt(ctx, "api:192.0.2.1", window, now); err != nil || found {
		t.Fatalf("expected empty window, got found=%v err=%v", found, err)
	}

	if err := repo.RecordAttempt(ctx, "api:192.0.2.1", oldest); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "api:192.0.2.1", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	ts, found, err := repo.OldestAttempt(ctx, "api:192.0.2.1", window, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !found {
		t.Fatal("expected an attempt inside the window")
	}
	if !ts.Equal(oldest) {
		t.Fatalf("expected oldest %v, got %v", oldest, ts)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()

	if _, err := repo.CountAttempts(ctx, "api:192.0.2.1", 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
	if err := repo.TrimWindow(ctx, "api:192.0.2.1", 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
}
