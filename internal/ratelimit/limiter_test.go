package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestLimiter creates a Limiter connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewLimiter(rdb), ctx
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l, ctx := setupTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("request beyond the limit should be refused")
	}
}

func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	l, ctx := setupTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("alice's first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); ok {
		t.Error("alice's second request should be refused")
	}
	if ok, _ := l.Allow(ctx, "bob", rule); !ok {
		t.Error("bob should not share alice's budget")
	}
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, ctx := setupTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Second}

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); ok {
		t.Fatal("second request should be refused")
	}

	time.Sleep(1100 * time.Millisecond)

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Error("request after the window should be allowed")
	}
}

func TestLimiter_Remaining(t *testing.T) {
	l, ctx := setupTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 5, Window: time.Minute}

	n, err := l.Remaining(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected full budget before any request, got %d", n)
	}

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("request should be allowed")
	}

	n, err = l.Remaining(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 remaining, got %d", n)
	}
}
