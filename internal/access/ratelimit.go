package access

import (
	"sync"
	"time"

	"exposemgr/internal/domain"
	"exposemgr/internal/timing"
)

// rateLimiterShards splits the keyspace across independent mutexes so
// concurrent callers on distinct IPs rarely contend on the same lock.
const rateLimiterShards = 16

type windowBucket struct {
	windowStart time.Time
	count       int
}

type rateLimiterShard struct {
	mu      sync.Mutex
	buckets map[string]*windowBucket
}

// RateLimiter implements a fixed-window-per-IP limiter: on each request,
// if the window has elapsed, reset {windowStart=now, count=1} and allow;
// else deny once count reaches maxRequests. Disabled limiters are a
// no-op.
type RateLimiter struct {
	clock       timing.Clock
	enabled     bool
	window      time.Duration
	maxRequests int
	shards      [rateLimiterShards]rateLimiterShard
}

// NewRateLimiter builds a RateLimiter. enabled=false makes Allow always
// return true without bookkeeping.
func NewRateLimiter(clock timing.Clock, enabled bool, windowMs, maxRequests int) *RateLimiter {
	rl := &RateLimiter{
		clock:       clock,
		enabled:     enabled,
		window:      time.Duration(windowMs) * time.Millisecond,
		maxRequests: maxRequests,
	}
	for i := range rl.shards {
		rl.shards[i].buckets = make(map[string]*windowBucket)
	}
	return rl
}

func shardIndex(key string) int {
	const (
		fnvOffset32 = uint32(2166136261)
		fnvPrime32  = uint32(16777619)
	)
	h := fnvOffset32
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return int(h % uint32(rateLimiterShards))
}

// Allow reports whether key (typically a client IP) may proceed, and
// advances that key's window bookkeeping as a side effect.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled {
		return true
	}
	shard := &rl.shards[shardIndex(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := rl.clock.Now()
	b, ok := shard.buckets[key]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		shard.buckets[key] = &windowBucket{windowStart: now, count: 1}
		return true
	}
	if b.count >= rl.maxRequests {
		return false
	}
	b.count++
	return true
}

// CheckRateLimit wraps Allow in the Denial shape the middleware composes.
func (rl *RateLimiter) CheckRateLimit(key string) *Denial {
	if rl.Allow(key) {
		return nil
	}
	return &Denial{
		Status: 429,
		Kind:   domain.KindRateLimited,
		Body:   map[string]any{"error": "rate_limited"},
	}
}
