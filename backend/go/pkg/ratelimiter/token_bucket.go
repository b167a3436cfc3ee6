package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements RateLimiter using the token bucket algorithm.
// It allows bursts of calls up to the bucket's capacity.
type TokenBucket struct {
	rate          float64   // Tokens generated per second.
	capacity      float64   // Maximum number of tokens in the bucket.
	tokens        float64   // Current number of tokens.
	lastTokenTime time.Time // Last refill time.
	now           func() time.Time
	mutex         sync.Mutex
}

// NewTokenBucket creates a full TokenBucket.
// rate: the number of tokens to generate per second.
// capacity: the maximum number of tokens (burst size).
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate float64, capacity int, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		rate:          rate,
		capacity:      float64(capacity),
		tokens:        float64(capacity),
		lastTokenTime: now(),
		now:           now,
	}
}

// refill adds tokens for the elapsed time. Caller holds the mutex.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastTokenTime)
	if elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTokenTime = now
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		delay, ok := tb.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token or reports how long until the next one.
func (tb *TokenBucket) reserve() (time.Duration, bool) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return 0, true
	}
	if tb.rate <= 0 {
		return time.Second, false
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.rate * float64(time.Second)), false
}
