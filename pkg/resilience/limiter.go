package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures the token bucket. Interval is the time between
// tokens; Burst is the bucket capacity.
type LimiterOpts struct {
	Interval time.Duration
	Burst    int
}

// PerMinute returns options allowing n calls per minute with no burst.
func PerMinute(n int) LimiterOpts {
	if n <= 0 {
		return LimiterOpts{}
	}
	return LimiterOpts{Interval: time.Minute / time.Duration(n), Burst: 1}
}

// Limiter spaces out calls to an upstream API.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a limiter. A zero Interval disables limiting.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Limiter{rl: rate.NewLimiter(limit, opts.Burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.rl.Wait(ctx) }
