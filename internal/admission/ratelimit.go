// Package admission implements request admission control: a per-identity
// token bucket rate limiter plus named circuit breakers guarding the
// broker's external dependencies.
package admission

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Consume when an identity's bucket is
// exhausted and still within its block window.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig configures the token bucket.
type RateLimitConfig struct {
	PointsPerWindow int
	Window          time.Duration
	BlockDuration   time.Duration
}

// RateLimiter is a per-identity token bucket. Each identity has an
// independent bucket; one identity cannot exhaust another's quota.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // points per second
	burst   float64
	block   time.Duration
}

type bucket struct {
	tokens    float64
	lastFill  time.Time
	blockedAt time.Time
}

// NewRateLimiter returns a limiter configured from cfg. A zero
// PointsPerWindow disables limiting — Consume always succeeds.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	block := cfg.BlockDuration
	if block <= 0 {
		block = 5 * time.Minute
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.PointsPerWindow) / window.Seconds(),
		burst:   float64(cfg.PointsPerWindow),
		block:   block,
	}
}

// Consume attempts to deduct cost points from identity's bucket,
// atomically. It returns ErrRateLimited if the identity is blocked or
// the bucket has insufficient points, in which case the identity
// remains blocked until BlockDuration elapses from first exhaustion.
func (l *RateLimiter) Consume(identity string, cost float64) error {
	if l.rate <= 0 {
		return nil
	}
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[identity] = b
	}

	if !b.blockedAt.IsZero() {
		if now.Sub(b.blockedAt) < l.block {
			return ErrRateLimited
		}
		// Block window elapsed: reset the bucket to a fresh full state.
		b.blockedAt = time.Time{}
		b.tokens = l.burst
		b.lastFill = now
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	if b.tokens < cost {
		b.blockedAt = now
		return ErrRateLimited
	}
	b.tokens -= cost
	return nil
}

// Reset clears an identity's bucket, used by tests and administrative
// overrides.
func (l *RateLimiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, identity)
}
