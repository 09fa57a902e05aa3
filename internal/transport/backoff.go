package transport

import (
	"context"
	"time"
)

// Backoff describes the delay between connection retry passes. The delay
// starts at Initial and doubles after each pass until it has doubled
// Doublings times; Max caps the result.
type Backoff struct {
	Initial   time.Duration
	Max       time.Duration
	Doublings int
}

// DefaultBackoff gives 250ms, 500ms, 1s, 2s, 4s, 4s, ...
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:   250 * time.Millisecond,
		Max:       4 * time.Second,
		Doublings: 5,
	}
}

func (b Backoff) normalize() Backoff {
	def := DefaultBackoff()
	if b == (Backoff{}) {
		return def
	}
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Doublings < 0 {
		b.Doublings = 0
	}
	return b
}

// Delay returns the sleep after the given zero-based retry pass.
func (b Backoff) Delay(pass int) time.Duration {
	if pass > b.Doublings {
		pass = b.Doublings
	}
	d := b.Initial
	for i := 0; i < pass; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
