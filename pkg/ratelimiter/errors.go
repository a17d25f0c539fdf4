package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("ratelimiter: invalid configuration")
	ErrInvalidTokenCount = errors.New("ratelimiter: invalid token count")
	ErrContextCancelled  = errors.New("ratelimiter: context cancelled")

	// ErrStoreUnavailable is returned when the backend cannot answer. Callers
	// guarding verification must treat it as a denial.
	ErrStoreUnavailable = errors.New("ratelimiter: store unavailable")
)
