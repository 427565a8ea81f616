// Package ratelimit gates outbound requests behind one process-wide
// token bucket. Worker count and request rate are independent knobs:
// every worker blocks on the same limiter, so adding workers never
// raises the external request rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter grants one request permit at a time. Burst is fixed at 1 so
// no two permits are ever granted closer together than 1/rate.
type Limiter struct {
	bucket   *rate.Limiter
	interval time.Duration
}

// New builds a limiter allowing perSecond requests per second across
// all callers. perSecond must be > 0.
func New(perSecond float64) *Limiter {
	return &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(perSecond), 1),
		interval: time.Duration(float64(time.Second) / perSecond),
	}
}

// Acquire blocks the caller until a permit is available or the context
// is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Interval is the minimum spacing between two permits. The backoff
// policy uses it as a floor so retry delays always exceed what the
// limiter alone would impose.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
