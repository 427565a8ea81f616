package fetcher

import (
	"math/rand"
	"time"
)

const jitterFactor = 0.2 // +/- 20%

// backoffPolicy computes the sleep before the next attempt: base
// doubled per attempt, capped at max, jittered, and always strictly
// above floor (the limiter's inter-permit interval) so repeated
// failures never busy-loop against a struggling upstream.
type backoffPolicy struct {
	base  time.Duration
	max   time.Duration
	floor time.Duration
}

// delay returns the backoff after the given failed attempt (1-based).
func (p backoffPolicy) delay(attempt int) time.Duration {
	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.max {
			d = p.max
			break
		}
	}

	jitter := 1 + jitterFactor*(2*rand.Float64()-1)
	d = time.Duration(float64(d) * jitter)

	// The floor keeps the retry spacing strictly above what the rate
	// limiter alone would impose between two requests.
	return p.floor + d
}
