package bucket

import (
	"context"
	"math"
	"time"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
)

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN takes n tokens if they are available now.
func (l *Limiter) AllowN(n int) bool {
	_, ok := l.reserve(n, 0)
	return ok
}

// Wait takes one token, suspending the caller until it is available.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN takes n tokens, suspending the caller until they are available.
// It fails with ErrCapacityExceeded when n exceeds the burst or the wait
// would exceed MaxLag, and with the context's error when ctx ends first; in
// both cases no tokens are taken.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	maxWait := time.Duration(math.MaxInt64)
	if l.maxLag > 0 {
		maxWait = l.maxLag
	}
	delay, ok := l.reserve(n, maxWait)
	if !ok {
		return gferrors.ErrCapacityExceeded
	}
	if delay <= 0 {
		return nil
	}

	if err := fiber.Sleep(ctx, delay); err != nil {
		l.restore(n)
		return err
	}
	return nil
}

// SetLimit changes the refill rate.
func (l *Limiter) SetLimit(rate Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	l.rate = rate
}

// SetBurst changes the bucket size. Non-positive values are ignored.
func (l *Limiter) SetBurst(burst int) {
	if burst <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	l.burst = burst
	l.tokens = math.Min(l.tokens, float64(burst))
}

// Limit returns the refill rate.
func (l *Limiter) Limit() Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Burst returns the bucket size.
func (l *Limiter) Burst() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burst
}

// Tokens returns the tokens available now. It is negative while waiters
// hold reservations.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	return l.tokens
}

// reserve takes n tokens, possibly going negative, and returns how long the
// caller must wait before using them.
func (l *Limiter) reserve(n int, maxWait time.Duration) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rate == Inf {
		return 0, true
	}
	if n > l.burst {
		return 0, false
	}

	now := l.now()
	l.refill(now)

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return 0, true
	}
	if l.rate == 0 {
		return 0, false
	}

	wait := time.Duration(float64(time.Second) * (float64(n) - l.tokens) / float64(l.rate))
	if wait > maxWait {
		return 0, false
	}
	l.tokens -= float64(n)
	return wait, true
}

func (l *Limiter) restore(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	l.tokens = math.Min(l.tokens+float64(n), float64(l.burst))
}

// refill adds tokens for the time elapsed since the last update.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last)
	if elapsed <= 0 {
		return
	}
	l.last = now
	if l.rate == Inf {
		l.tokens = float64(l.burst)
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*float64(l.rate), float64(l.burst))
}
