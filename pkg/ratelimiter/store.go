package ratelimiter

import (
	"context"
	"time"
)

// Store defines the interface for rate limit storage backends.
type Store interface {
	// ConsumeTokens attempts to consume the specified number of tokens.
	// Returns the remaining tokens and reset time.
	// If remaining is negative, the request should be denied and nothing was consumed.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// refill applies the token bucket refill for the intervals elapsed since lastRefill.
// It returns the new token count and refill timestamp.
func refill(tokens int, lastRefill, now time.Time, config Config) (int, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed <= 0 {
		return tokens, lastRefill
	}
	// Cap intervals to prevent integer overflow in high-capacity/low-rate scenarios
	maxIntervals := int64(config.Capacity/config.RefillRate + 1)
	intervals := min(int64(elapsed/config.RefillInterval), maxIntervals)
	if intervals == 0 {
		return tokens, lastRefill
	}
	tokens = min(tokens+int(intervals)*config.RefillRate, config.Capacity)
	// Advance by whole intervals so partial progress toward the next token is kept
	return tokens, lastRefill.Add(time.Duration(intervals) * config.RefillInterval)
}
