package backoff

import (
	"math/rand/v2"
	"time"
)

// Policy computes the delay before a retry attempt: exponential growth
// from Base, capped at Max, with a symmetric jitter fraction applied to
// spread simultaneous retries apart.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func Default() Policy {
	return Policy{
		Base:   2 * time.Second,
		Max:    30 * time.Second,
		Jitter: 0.1,
	}
}

// Delay returns the wait before retrying after the given 0-indexed
// attempt. The result is never negative and never exceeds Max, jitter
// included.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.grow(attempt)

	if p.Jitter > 0 {
		factor := 1 + p.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * factor)
	}

	if d < 0 {
		d = 0
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

func (p Policy) grow(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Large shifts overflow int64 long before they matter.
	if attempt > 30 {
		return p.Max
	}

	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}
