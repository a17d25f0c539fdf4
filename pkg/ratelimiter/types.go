package ratelimiter

import "time"

// Config describes a token bucket.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens regained per interval
	RefillInterval time.Duration // refill period
}

// Result is the outcome of one check.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left; negative when the check was denied
	ResetAt   time.Time // next refill
}

// Allowed reports whether the check consumed its tokens.
func (r *Result) Allowed() bool { return r.Remaining >= 0 }

// Exhausted reports whether no tokens are left, including when this check
// took the last one.
func (r *Result) Exhausted() bool { return r.Remaining <= 0 }

// RetryAfter is RetryAfterFrom(time.Now()).
func (r *Result) RetryAfter() time.Duration { return r.RetryAfterFrom(time.Now()) }

// RetryAfterFrom returns the wait until ResetAt for a denied check and zero
// otherwise.
func (r *Result) RetryAfterFrom(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}
