// Package paircache provides Redis-backed memoization of non-ideal pair
// evaluations. Records are simple key-value pairs with TTL-based expiry:
//
//	Key:   pair:<lowID>:<highID>
//	Value: <decision>
//	TTL:   cache lifetime
//
// The hourly batch pass rescans the same largely unchanged pool;
// remembering which pairs scored too_similar or too_extreme avoids
// recomputing them every pass. Only non-ideal outcomes are stored, and the
// TTL bounds the staleness window after a participant revises their
// questionnaire answers.
package paircache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/counterpoint/match-service/internal/scoring"
)

const (
	// PairPrefix is the Redis key prefix for pair evaluation records.
	PairPrefix = "pair:"

	// DefaultTTL bounds how long a cached evaluation can outlive a
	// questionnaire revision.
	DefaultTTL = 24 * time.Hour
)

// Cache stores pair evaluation outcomes in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a pair cache using the provided Redis client. A non-positive
// ttl falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Key builds the canonical cache key for a pair. The two IDs are ordered
// so that Key(a, b) == Key(b, a), matching the symmetry of the score.
func Key(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return PairPrefix + lo + ":" + hi
}

// Get returns the remembered decision for a pair. The second return is
// false on a miss.
func (c *Cache) Get(ctx context.Context, a, b string) (scoring.Decision, bool, error) {
	val, err := c.client.Get(ctx, Key(a, b)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return scoring.Decision(val), true, nil
}

// Put remembers a pair's decision for the cache TTL.
func (c *Cache) Put(ctx context.Context, a, b string, d scoring.Decision) error {
	return c.client.Set(ctx, Key(a, b), string(d), c.ttl).Err()
}

// Invalidate drops every cached evaluation involving the participant. Redis
// has no secondary index over our keys, so this scans the pair keyspace;
// the pool is study-sized, not internet-sized.
func (c *Cache) Invalidate(ctx context.Context, participantID string) error {
	iter := c.client.Scan(ctx, 0, PairPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if keyInvolves(key, participantID) {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}

func keyInvolves(key, participantID string) bool {
	rest := key[len(PairPrefix):]
	n := len(participantID)
	if len(rest) > n && rest[:n] == participantID && rest[n] == ':' {
		return true
	}
	if len(rest) > n && rest[len(rest)-n:] == participantID && rest[len(rest)-n-1] == ':' {
		return true
	}
	return false
}
