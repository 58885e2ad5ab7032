// Package ratelimit provides fixed-window rate limiting for HTTP requests.
//
// Each client key gets a counter and the time its current window started. A
// request is admitted while the counter is below the limit; once the window
// has elapsed the counter restarts at one. Up to twice the limit can pass in
// any window-length span that straddles two windows.
//
// Two backends share the same semantics: FixedWindow keeps the table in
// process memory, RedisLimiter keeps it in Redis so several replicas share one
// budget per client.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single rate limit check.
type Decision int

const (
	Admit Decision = iota
	Reject
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow records a request for key and reports whether it is admitted,
	// along with window state for response headers.
	Allow(ctx context.Context, key string) (Decision, Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Requests left in the current window
	ResetAt    time.Time     // When the current window ends
	RetryAfter time.Duration // Time until the window ends (set only on Reject)
}
