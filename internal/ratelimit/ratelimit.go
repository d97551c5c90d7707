// Package ratelimit shares an API call budget between workers.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket of perMinute tokens refilled evenly over a
// minute. It is safe for concurrent use and must be shared by pointer.
type Limiter struct {
	lim   *rate.Limiter
	total atomic.Int64
}

// PerMinute returns a Limiter that starts full.
func PerMinute(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)}
}

// Wait blocks until n tokens are available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if n > l.lim.Burst() {
		return fmt.Errorf("ratelimit: %d calls exceed bucket capacity %d", n, l.lim.Burst())
	}
	if err := l.lim.WaitN(ctx, n); err != nil {
		return err
	}
	l.total.Add(int64(n))
	return nil
}

// Capacity is the bucket size.
func (l *Limiter) Capacity() int { return l.lim.Burst() }

// Total is the number of tokens handed out so far.
func (l *Limiter) Total() int64 { return l.total.Load() }
