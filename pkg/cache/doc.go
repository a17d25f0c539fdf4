// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
//	c := cache.New[string, time.Time](1024)
//
//	c.Set("a", v, time.Minute) // expires after a minute
//	c.Set("b", v, 0)           // lives until evicted
//
//	if c.Add(requestID, now, 10*time.Minute) {
//		// first time this request id has been seen within ten minutes
//	}
//
// Expired entries are never returned. They are removed lazily when touched,
// when they fall off the LRU tail, or by Purge.
package cache
