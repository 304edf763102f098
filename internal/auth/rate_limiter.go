package auth

import (
	"sync"
	"time"
)

// RateLimiter is a per-key token bucket. Keys are wallets or client IPs.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    int
	window  time.Duration
	now     func() time.Time

	lastPrune time.Time
}

type tokenBucket struct {
	tokens   int
	lastFill time.Time
}

// NewRateLimiter allows ratePerWindow requests per key in each window.
func NewRateLimiter(ratePerWindow int, window time.Duration) *RateLimiter {
	if ratePerWindow <= 0 {
		ratePerWindow = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    ratePerWindow,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks if a request should be allowed for the given key.
// Returns (allowed, retryAfter) where retryAfter is the duration to wait if denied.
// Idle buckets are dropped at most once per window.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) >= rl.window {
		rl.pruneLocked(now)
	}
	bucket, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &tokenBucket{tokens: rl.rate - 1, lastFill: now}
		return true, 0
	}

	perToken := rl.window / time.Duration(rl.rate)
	if elapsed := now.Sub(bucket.lastFill); elapsed >= perToken {
		refill := int(elapsed / perToken)
		bucket.tokens = min(rl.rate, bucket.tokens+refill)
		bucket.lastFill = bucket.lastFill.Add(time.Duration(refill) * perToken)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, 0
	}
	return false, perToken - now.Sub(bucket.lastFill)
}

// Prune drops buckets that have been idle long enough to be full again.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(rl.now())
}

func (rl *RateLimiter) pruneLocked(now time.Time) int {
	rl.lastPrune = now
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastFill) >= rl.window {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Reset resets the rate limiter for a key (useful for testing).
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}
