// rate_limiter.go - Per-provider request rate limiting

package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per provider name.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows rpm requests per minute per provider. rpm <= 0
// disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(name string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[name]
	if !ok {
		// RPM limiter: convert to requests per second
		l = rate.NewLimiter(rate.Limit(float64(rl.rpm)/60.0), rl.burst)
		rl.limiters[name] = l
	}
	return l
}

// Wait blocks until provider name may send another request or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, name string) error {
	if rl == nil || rl.rpm <= 0 {
		return ctx.Err()
	}
	return rl.limiter(name).Wait(ctx)
}
