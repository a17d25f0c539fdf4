// Package redisstore keeps login challenges in Redis hashes that expire
// together with the challenge.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

// failureScript counts an attempt only while the challenge still exists.
var failureScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'method_attempted', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

const (
	fieldUserID    = "user_id"
	fieldMethods   = "methods"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
	fieldAttempted = "method_attempted"
)

// ChallengeStore implements twofactor.ChallengeStore.
type ChallengeStore struct {
	client redis.Cmdable
	prefix string
}

// Option configures a ChallengeStore.
type Option func(*ChallengeStore)

// WithKeyPrefix namespaces challenge keys. Defaults to "challenge:".
func WithKeyPrefix(prefix string) Option {
	return func(s *ChallengeStore) {
		s.prefix = prefix
	}
}

// New returns a ChallengeStore using client.
func New(client redis.Cmdable, opts ...Option) *ChallengeStore {
	s := &ChallengeStore{client: client, prefix: "challenge:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ twofactor.ChallengeStore = (*ChallengeStore)(nil)

func (s *ChallengeStore) CreateChallenge(ctx context.Context, c twofactor.Challenge) error {
	methods := make([]string, len(c.Methods))
	for i, m := range c.Methods {
		methods[i] = string(m)
	}
	key := s.key(c.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldUserID, c.UserID,
			fieldMethods, strings.Join(methods, ","),
			fieldIssuedAt, c.IssuedAt.UnixMilli(),
			fieldExpiresAt, c.ExpiresAt.UnixMilli(),
			fieldAttempts, c.Attempts,
			fieldAttempted, string(c.MethodAttempted),
		)
		p.PExpireAt(ctx, key, c.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) GetChallenge(ctx context.Context, id string, now time.Time) (twofactor.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return twofactor.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	if len(fields) == 0 {
		return twofactor.Challenge{}, twofactor.ErrNotFound
	}

	c, err := decode(id, fields)
	if err != nil {
		// A partially written hash is treated as missing
		return twofactor.Challenge{}, errors.Join(twofactor.ErrNotFound, err)
	}
	if c.Expired(now) {
		return twofactor.Challenge{}, twofactor.ErrNotFound
	}
	return c, nil
}

func (s *ChallengeStore) RecordChallengeFailure(ctx context.Context, id string, method twofactor.Method) (int, error) {
	n, err := failureScript.Run(ctx, s.client, []string{s.key(id)}, string(method)).Int()
	if err != nil {
		return 0, fmt.Errorf("record challenge failure: %w", err)
	}
	if n < 0 {
		return 0, twofactor.ErrNotFound
	}
	return n, nil
}

func (s *ChallengeStore) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete challenge: %w", err)
	}
	return n == 1, nil
}

func (s *ChallengeStore) key(id string) string {
	return s.prefix + id
}

func decode(id string, fields map[string]string) (twofactor.Challenge, error) {
	issued, err := strconv.ParseInt(fields[fieldIssuedAt], 10, 64)
	if err != nil {
		return twofactor.Challenge{}, fmt.Errorf("issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return twofactor.Challenge{}, fmt.Errorf("expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return twofactor.Challenge{}, fmt.Errorf("attempts: %w", err)
	}

	var methods []twofactor.Method
	for m := range strings.SplitSeq(fields[fieldMethods], ",") {
		if m != "" {
			methods = append(methods, twofactor.Method(m))
		}
	}

	return twofactor.Challenge{
		ID:              id,
		UserID:          fields[fieldUserID],
		Methods:         methods,
		MethodAttempted: twofactor.Method(fields[fieldAttempted]),
		Attempts:        attempts,
		IssuedAt:        time.UnixMilli(issued),
		ExpiresAt:       time.UnixMilli(expires),
	}, nil
}
