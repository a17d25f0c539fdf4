// Package ratelimiter provides token bucket rate limiting with memory and
// Redis storage and an HTTP middleware.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each check consumes tokens; a check that cannot be covered
// is denied without consuming anything and reports a negative Remaining.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     10,
//		RefillInterval: 15 * time.Minute,
//	})
//
//	result, err := limiter.Allow(ctx, "login:"+userID)
//	if !result.Allowed() {
//		// back off for result.RetryAfter()
//	}
//
// RedisStore runs the same algorithm in a Lua script so that several
// processes share one budget:
//
//	store := ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("accountsec:rl:"))
//
// Middleware limits HTTP requests by a key extracted from the request and
// sets X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
//
// MemoryStore drops buckets that were not touched for an hour (see
// WithStaleAfter); Redis keys expire once the bucket would be full again.
package ratelimiter
