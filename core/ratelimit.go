// core/ratelimit.go
package core

// Per-caller rate limiting for the intent gateway: one golang.org/x/time/rate
// token bucket per caller identity, created lazily, so one caller going
// over limit never affects another's admissions.

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig names the token bucket shape: limit requests per window,
// plus a burst allowance.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// DefaultRateLimitConfig returns the standard 10 requests / 60 s shape
// with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 10, Window: 60 * time.Second, Burst: 10}
}

// RateLimiter is a registry of per-caller token buckets.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter constructs a RateLimiter using cfg's shape for every
// caller's bucket.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether caller may make one more request right now. On
// false it also returns the duration the caller should wait before
// retrying.
func (rl *RateLimiter) Allow(caller string) (bool, time.Duration) {
	b := rl.bucketFor(caller)
	res := b.ReserveN(time.Now(), 1)
	if !res.OK() {
		return false, rl.cfg.Window
	}
	if res.Delay() > 0 {
		res.Cancel()
		// The hint is the full window, not the token-refill delay: a
		// caller over limit is told to back off for one whole window.
		return false, rl.cfg.Window
	}
	return true, 0
}

func (rl *RateLimiter) bucketFor(caller string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[caller]
	if !ok {
		perSecond := rate.Limit(float64(rl.cfg.Limit) / rl.cfg.Window.Seconds())
		b = rate.NewLimiter(perSecond, rl.cfg.Burst)
		rl.buckets[caller] = b
	}
	return b
}
