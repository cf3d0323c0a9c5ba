package paircache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/counterpoint/match-service/internal/scoring"
)

// setupTestCache creates a Cache connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestCache(t *testing.T) (*Cache, context.Context) {
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

	return New(rdb, time.Minute), ctx
}

// ---------- Key tests (no Redis required) ----------

func TestKey_IsSymmetric(t *testing.T) {
	if Key("alice", "bob") != Key("bob", "alice") {
		t.Errorf("key not symmetric: %s vs %s", Key("alice", "bob"), Key("bob", "alice"))
	}
}

func TestKey_Format(t *testing.T) {
	if got := Key("bob", "alice"); got != "pair:alice:bob" {
		t.Errorf("expected pair:alice:bob, got %s", got)
	}
}

func TestKeyInvolves(t *testing.T) {
	key := Key("alice", "bob")
	if !keyInvolves(key, "alice") {
		t.Error("expected alice to be involved")
	}
	if !keyInvolves(key, "bob") {
		t.Error("expected bob to be involved")
	}
	if keyInvolves(key, "al") {
		t.Error("prefix of an ID must not match")
	}
	if keyInvolves(key, "ob") {
		t.Error("suffix of an ID must not match")
	}
	if keyInvolves(key, "carol") {
		t.Error("unrelated ID must not match")
	}
}

// ---------- Redis-backed tests ----------

func TestCache_PutGet(t *testing.T) {
	c, ctx := setupTestCache(t)

	if err := c.Put(ctx, "alice", "bob", scoring.TooSimilar); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	d, hit, err := c.Get(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit")
	}
	if d != scoring.TooSimilar {
		t.Errorf("expected too_similar, got %s", d)
	}

	// Reversed argument order hits the same record.
	d, hit, err = c.Get(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("reversed get failed: %v", err)
	}
	if !hit || d != scoring.TooSimilar {
		t.Errorf("expected symmetric hit, got hit=%v d=%s", hit, d)
	}
}

func TestCache_Miss(t *testing.T) {
	c, ctx := setupTestCache(t)

	_, hit, err := c.Get(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if hit {
		t.Error("expected a miss on an empty cache")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c, ctx := setupTestCache(t)

	if err := c.Put(ctx, "alice", "bob", scoring.TooSimilar); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := c.Put(ctx, "alice", "carol", scoring.TooExtreme); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := c.Put(ctx, "bob", "carol", scoring.TooSimilar); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := c.Invalidate(ctx, "alice"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "alice", "bob"); hit {
		t.Error("alice-bob should be invalidated")
	}
	if _, hit, _ := c.Get(ctx, "alice", "carol"); hit {
		t.Error("alice-carol should be invalidated")
	}
	if _, hit, _ := c.Get(ctx, "bob", "carol"); !hit {
		t.Error("bob-carol should survive alice's invalidation")
	}
}
