package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	tokens  int
	filled  time.Time // last refill boundary
	touched time.Time
}

// MemoryStore keeps buckets in process memory. A background goroutine drops
// buckets that have not been touched for a while; call Close to stop it.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time

	sweepEvery time.Duration
	staleAfter time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale buckets are removed.
// Zero disables the background sweep.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) { ms.sweepEvery = interval }
}

// WithStaleAfter sets how long an untouched bucket survives a sweep.
func WithStaleAfter(d time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if d > 0 {
			ms.staleAfter = d
		}
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore returns a store sweeping every five minutes and dropping
// buckets idle for an hour.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets:    make(map[string]*memoryBucket),
		now:        time.Now,
		sweepEvery: 5 * time.Minute,
		staleAfter: time.Hour,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.sweepEvery > 0 {
		go ms.sweepLoop()
	}
	return ms
}

func (ms *MemoryStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	if ctx.Err() != nil {
		return 0, time.Time{}, ErrContextCancelled
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	b, ok := ms.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: config.Capacity, filled: now}
		ms.buckets[key] = b
	}
	b.tokens, b.filled = refill(b.tokens, b.filled, now, config)
	b.touched = now

	resetAt := b.filled.Add(config.RefillInterval)
	left := b.tokens - tokens
	if left >= 0 {
		b.tokens = left
	}
	return left, resetAt, nil
}

func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	delete(ms.buckets, key)
	ms.mu.Unlock()
	return nil
}

// Len returns the number of tracked buckets.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.buckets)
}

// RemoveStale drops buckets idle for longer than the stale threshold.
func (ms *MemoryStore) RemoveStale() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := ms.now().Add(-ms.staleAfter)
	for key, b := range ms.buckets {
		if b.touched.Before(cutoff) {
			delete(ms.buckets, key)
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() { close(ms.done) })
}

func (ms *MemoryStore) sweepLoop() {
	t := time.NewTicker(ms.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ms.done:
			return
		case <-t.C:
			ms.RemoveStale()
		}
	}
}
