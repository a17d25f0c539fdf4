package twofactor

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryChallengeStore keeps challenges in process memory.
// Expired entries are dropped when they are next looked up.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryChallengeStore returns an empty store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]Challenge)}
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)

func (s *MemoryChallengeStore) CreateChallenge(ctx context.Context, c Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Methods = slices.Clone(c.Methods)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = c
	return nil
}

func (s *MemoryChallengeStore) GetChallenge(ctx context.Context, id string, now time.Time) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	if c.Expired(now) {
		delete(s.challenges, id)
		return Challenge{}, ErrNotFound
	}
	c.Methods = slices.Clone(c.Methods)
	return c, nil
}

func (s *MemoryChallengeStore) RecordChallengeFailure(ctx context.Context, id string, method Method) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return 0, ErrNotFound
	}
	c.Attempts++
	c.MethodAttempted = method
	s.challenges[id] = c
	return c.Attempts, nil
}

func (s *MemoryChallengeStore) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[id]; !ok {
		return false, nil
	}
	delete(s.challenges, id)
	return true, nil
}
