package queue

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: min(Max, Base*2^(attempt-1)) with equal
// jitter, so the result lies in [d/2, d].
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// Delay returns the wait before the next delivery after the given attempt
// (1-based) failed.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	random := rand.Float64
	if b.Rand != nil {
		random = b.Rand
	}
	half := d / 2
	return half + time.Duration(random()*float64(d-half))
}
