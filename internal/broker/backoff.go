package broker

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the wait before retry number attempt (1-based):
// exponential growth from base, capped at max, with half the interval
// randomized so simultaneous reconnecting processes spread out. The result
// lies in [d/2, d] where d = min(base*2^(attempt-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	half := delay / 2
	return half + rand.N(half+1)
}
