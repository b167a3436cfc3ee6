package ratelimiter

import "context"

// RateLimiter is the interface for rate limiting outbound calls.
type RateLimiter interface {
	// Allow returns true if a call may proceed right now.
	Allow() bool
	// Wait blocks until a call may proceed or ctx is done.
	Wait(ctx context.Context) error
}
