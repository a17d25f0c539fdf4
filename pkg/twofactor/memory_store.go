package twofactor

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

type codeKey struct {
	userID  string
	purpose Purpose
}

// MemoryStore is a Store backed by maps under a single mutex.
// It suits tests and single-process deployments.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]User
	totp       map[string]TotpCredential
	codes      map[codeKey]PendingEmailCode
	recovery   map[string][]RecoveryCode
	enrollment map[string]Enrollment
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]User),
		totp:       make(map[string]TotpCredential),
		codes:      make(map[codeKey]PendingEmailCode),
		recovery:   make(map[string][]RecoveryCode),
		enrollment: make(map[string]Enrollment),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) PutUser(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		user.TwoFactorEnabled = existing.TwoFactorEnabled
		user.TwoFactorMethod = existing.TwoFactorMethod
		user.CreatedAt = existing.CreatedAt
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) SaveTotpSecret(ctx context.Context, userID, ciphertext string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.totp[userID]; ok && cred.Enabled() {
		return ErrAlreadyEnrolled
	}
	s.totp[userID] = TotpCredential{
		UserID:           userID,
		SecretCiphertext: ciphertext,
		CreatedAt:        now,
	}
	return nil
}

func (s *MemoryStore) GetTotpCredential(ctx context.Context, userID string) (TotpCredential, error) {
	if err := ctx.Err(); err != nil {
		return TotpCredential{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.totp[userID]
	if !ok {
		return TotpCredential{}, ErrNotFound
	}
	return cred, nil
}

func (s *MemoryStore) RecordTotpStep(ctx context.Context, userID string, step int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.totp[userID]
	if !ok {
		return false, ErrNotFound
	}
	if step <= cred.LastAcceptedStep {
		return false, nil
	}
	cred.LastAcceptedStep = step
	s.totp[userID] = cred
	return true, nil
}

func (s *MemoryStore) RewindTotpStep(ctx context.Context, userID string, from, to int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.totp[userID]
	if !ok || cred.LastAcceptedStep != from {
		return nil
	}
	cred.LastAcceptedStep = to
	s.totp[userID] = cred
	return nil
}

func (s *MemoryStore) ActivateMethod(ctx context.Context, userID string, method Method, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !enrollable(method) {
		return ErrInvalidMethod
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if method == MethodTOTP {
		cred, ok := s.totp[userID]
		if !ok {
			return ErrNotFound
		}
		if cred.EnabledAt == nil {
			cred.EnabledAt = &now
			s.totp[userID] = cred
		}
	}
	u.TwoFactorEnabled = true
	u.TwoFactorMethod = method
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) IssueEmailCode(ctx context.Context, code PendingEmailCode, cooldown time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{code.UserID, code.Purpose}
	if prev, ok := s.codes[key]; ok && prev.ConsumedAt == nil && code.IssuedAt.Before(prev.ExpiresAt) {
		if wait := prev.IssuedAt.Add(cooldown).Sub(code.IssuedAt); wait > 0 {
			return retryAfter(ErrResendTooSoon, wait)
		}
	}
	code.ConsumedAt = nil
	code.AttemptCount = 0
	s.codes[key] = code
	return nil
}

func (s *MemoryStore) DeleteEmailCode(ctx context.Context, userID string, purpose Purpose, codeHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{userID, purpose}
	if prev, ok := s.codes[key]; ok && prev.CodeHash == codeHash {
		delete(s.codes, key)
	}
	return nil
}

func (s *MemoryStore) ConsumeEmailCode(ctx context.Context, userID string, purpose Purpose, candidateHash string, now time.Time, maxAttempts int) (EmailCodeResult, error) {
	if err := ctx.Err(); err != nil {
		return EmailCodeMissing, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{userID, purpose}
	code, ok := s.codes[key]
	switch {
	case !ok || code.ConsumedAt != nil:
		return EmailCodeMissing, nil
	case !now.Before(code.ExpiresAt):
		return EmailCodeExpired, nil
	case code.AttemptCount >= maxAttempts:
		return EmailCodeLocked, nil
	}

	if subtle.ConstantTimeCompare([]byte(code.CodeHash), []byte(candidateHash)) != 1 {
		code.AttemptCount++
		s.codes[key] = code
		if code.AttemptCount >= maxAttempts {
			return EmailCodeLocked, nil
		}
		return EmailCodeMismatch, nil
	}

	code.ConsumedAt = &now
	s.codes[key] = code
	return EmailCodeAccepted, nil
}

func (s *MemoryStore) RestoreEmailCode(ctx context.Context, userID string, purpose Purpose, codeHash string, consumedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{userID, purpose}
	code, ok := s.codes[key]
	if !ok || code.CodeHash != codeHash || code.ConsumedAt == nil || !code.ConsumedAt.Equal(consumedAt) {
		return nil
	}
	code.ConsumedAt = nil
	s.codes[key] = code
	return nil
}

func (s *MemoryStore) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	codes := make([]RecoveryCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, RecoveryCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  h,
			CreatedAt: now,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovery[userID] = codes
	return nil
}

func (s *MemoryStore) RedeemRecoveryCode(ctx context.Context, userID, candidateHash string, now time.Time) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.recovery[userID]
	match := -1
	for i := range codes {
		// Scan the whole set so timing does not reveal the position
		eq := subtle.ConstantTimeCompare([]byte(codes[i].CodeHash), []byte(candidateHash))
		if eq == 1 && codes[i].UsedAt == nil {
			match = i
		}
	}
	if match >= 0 {
		codes[match].UsedAt = &now
	}
	return unused(codes), match >= 0, nil
}

func (s *MemoryStore) RestoreRecoveryCode(ctx context.Context, userID, codeHash string, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.recovery[userID] {
		if c.CodeHash == codeHash && c.UsedAt != nil && c.UsedAt.Equal(usedAt) {
			s.recovery[userID][i].UsedAt = nil
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return unused(s.recovery[userID]), nil
}

func (s *MemoryStore) GetEnrollment(ctx context.Context, userID string) (Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return Enrollment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollment[userID]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) SaveEnrollment(ctx context.Context, e Enrollment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollment[e.UserID] = e
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time, pendingSecretTTL time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, code := range s.codes {
		if code.ConsumedAt != nil || !now.Before(code.ExpiresAt) {
			delete(s.codes, key)
			n++
		}
	}
	cutoff := now.Add(-pendingSecretTTL)
	for userID, cred := range s.totp {
		if !cred.Enabled() && !cred.CreatedAt.After(cutoff) {
			delete(s.totp, userID)
			n++
		}
	}
	return n, nil
}

func unused(codes []RecoveryCode) int {
	n := 0
	for _, c := range codes {
		if c.UsedAt == nil {
			n++
		}
	}
	return n
}
