package twofactor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/twofactor"
	"github.com/aitoolhub/accountsec/pkg/twofactor/storetest"
)

func pending(userID string, purpose twofactor.Purpose, hash string, now time.Time) twofactor.PendingEmailCode {
	return twofactor.PendingEmailCode{
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
}

func TestMemoryStore_EmailCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("code is single use", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "h1", baseTime), time.Minute))

		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "h1", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)

		res, err = s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "h1", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeMissing, res)
	})

	t.Run("purposes are independent", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "setup", baseTime), time.Minute))
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "login", baseTime), time.Minute))

		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeLogin, "setup", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeMismatch, res)

		res, err = s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "setup", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)
	})

	t.Run("new code invalidates previous", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "old", baseTime), time.Minute))
		later := baseTime.Add(2 * time.Minute)
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "new", later), time.Minute))

		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeLogin, "old", later, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeMismatch, res)

		res, err = s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeLogin, "new", later, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)
	})

	t.Run("resend inside cooldown keeps existing code", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "first", baseTime), time.Minute))

		err := s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "second", baseTime.Add(20*time.Second)), time.Minute)
		require.ErrorIs(t, err, twofactor.ErrResendTooSoon)
		assert.Equal(t, 40*time.Second, twofactor.RetryAfter(err))

		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "first", baseTime.Add(30*time.Second), 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)
	})

	t.Run("cooldown does not apply once consumed", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "a", baseTime), time.Minute))
		_, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeLogin, "a", baseTime, 5)
		require.NoError(t, err)

		assert.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "b", baseTime.Add(time.Second)), time.Minute))
	})

	t.Run("expired code is rejected", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "h", baseTime), time.Minute))

		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "h", baseTime.Add(10*time.Minute), 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeExpired, res)
	})

	t.Run("attempt limit locks the code", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "right", baseTime), time.Minute))

		for i := 1; i < 5; i++ {
			res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "wrong", baseTime, 5)
			require.NoError(t, err)
			assert.Equal(t, twofactor.EmailCodeMismatch, res, "attempt %d", i)
		}
		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "wrong", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeLocked, res)

		res, err = s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "right", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeLocked, res)
	})

	t.Run("delete only removes matching hash", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "h", baseTime), time.Minute))

		require.NoError(t, s.DeleteEmailCode(ctx, "u1", twofactor.PurposeSetup, "other"))
		res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeSetup, "h", baseTime, 5)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)
	})

	t.Run("concurrent consumers accept once", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeLogin, "h", baseTime), time.Minute))

		var accepted atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.ConsumeEmailCode(ctx, "u1", twofactor.PurposeLogin, "h", baseTime, 5)
				if err == nil && res == twofactor.EmailCodeAccepted {
					accepted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), accepted.Load())
	})
}

func TestMemoryStore_RecordTotpStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := twofactor.NewMemoryStore()

	_, err := s.RecordTotpStep(ctx, "u1", 10)
	require.ErrorIs(t, err, twofactor.ErrNotFound)

	require.NoError(t, s.SaveTotpSecret(ctx, "u1", "ciphertext", baseTime))

	ok, err := s.RecordTotpStep(ctx, "u1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, step := range []int64{10, 9, 1} {
		ok, err = s.RecordTotpStep(ctx, "u1", step)
		require.NoError(t, err)
		assert.False(t, ok, "step %d must be rejected", step)
	}

	ok, err = s.RecordTotpStep(ctx, "u1", 11)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_TotpCredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := twofactor.NewMemoryStore()
	require.NoError(t, s.PutUser(ctx, twofactor.User{ID: "u1", Email: "u1@example.com"}))

	require.NoError(t, s.SaveTotpSecret(ctx, "u1", "first", baseTime))
	require.NoError(t, s.SaveTotpSecret(ctx, "u1", "second", baseTime))

	cred, err := s.GetTotpCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "second", cred.SecretCiphertext)
	assert.False(t, cred.Enabled())

	require.NoError(t, s.ActivateMethod(ctx, "u1", twofactor.MethodTOTP, baseTime))
	require.NoError(t, s.ActivateMethod(ctx, "u1", twofactor.MethodTOTP, baseTime.Add(time.Hour)))

	cred, err = s.GetTotpCredential(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, cred.EnabledAt)
	assert.Equal(t, baseTime, *cred.EnabledAt)

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.TwoFactorEnabled)
	assert.Equal(t, twofactor.MethodTOTP, user.TwoFactorMethod)

	assert.ErrorIs(t, s.SaveTotpSecret(ctx, "u1", "third", baseTime), twofactor.ErrAlreadyEnrolled)

	// Registering again must not clear the 2FA flags
	require.NoError(t, s.PutUser(ctx, twofactor.User{ID: "u1", Email: "new@example.com"}))
	user, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.TwoFactorEnabled)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestMemoryStore_ActivateMethod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := twofactor.NewMemoryStore()

	assert.ErrorIs(t, s.ActivateMethod(ctx, "missing", twofactor.MethodEmail, baseTime), twofactor.ErrNotFound)
	assert.ErrorIs(t, s.ActivateMethod(ctx, "missing", twofactor.MethodRecovery, baseTime), twofactor.ErrInvalidMethod)

	require.NoError(t, s.PutUser(ctx, twofactor.User{ID: "u1"}))
	assert.ErrorIs(t, s.ActivateMethod(ctx, "u1", twofactor.MethodTOTP, baseTime), twofactor.ErrNotFound,
		"totp cannot be activated without a secret")
	require.NoError(t, s.ActivateMethod(ctx, "u1", twofactor.MethodEmail, baseTime))
}

func TestMemoryStore_RecoveryCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("each code redeems once", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.ReplaceRecoveryCodes(ctx, "u1", []string{"a", "b", "c"}, baseTime))

		remaining, ok, err := s.RedeemRecoveryCode(ctx, "u1", "b", baseTime)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, remaining)

		remaining, ok, err = s.RedeemRecoveryCode(ctx, "u1", "b", baseTime)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, remaining)

		_, ok, err = s.RedeemRecoveryCode(ctx, "u1", "unknown", baseTime)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("replace invalidates the old set", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.ReplaceRecoveryCodes(ctx, "u1", []string{"a", "b"}, baseTime))
		require.NoError(t, s.ReplaceRecoveryCodes(ctx, "u1", []string{"x", "y", "z"}, baseTime))

		_, ok, err := s.RedeemRecoveryCode(ctx, "u1", "a", baseTime)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.CountRecoveryCodes(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("concurrent redemption succeeds once", func(t *testing.T) {
		t.Parallel()
		s := twofactor.NewMemoryStore()
		require.NoError(t, s.ReplaceRecoveryCodes(ctx, "u1", []string{"a", "b"}, baseTime))

		var redeemed atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := s.RedeemRecoveryCode(ctx, "u1", "a", baseTime); err == nil && ok {
					redeemed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), redeemed.Load())
	})
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := twofactor.NewMemoryStore()
	require.NoError(t, s.PutUser(ctx, twofactor.User{ID: "enabled"}))

	require.NoError(t, s.IssueEmailCode(ctx, pending("u1", twofactor.PurposeSetup, "old", baseTime), time.Minute))
	require.NoError(t, s.IssueEmailCode(ctx, pending("u2", twofactor.PurposeSetup, "fresh", baseTime.Add(9*time.Minute)), time.Minute))
	require.NoError(t, s.SaveTotpSecret(ctx, "stale", "c", baseTime))
	require.NoError(t, s.SaveTotpSecret(ctx, "enabled", "c", baseTime))
	require.NoError(t, s.ActivateMethod(ctx, "enabled", twofactor.MethodTOTP, baseTime))

	now := baseTime.Add(25 * time.Hour)
	n, err := s.DeleteExpired(ctx, baseTime.Add(time.Minute), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.DeleteExpired(ctx, baseTime.Add(15*time.Minute), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the expired email code")

	n, err = s.DeleteExpired(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "second email code and the stale pending secret")

	_, err = s.GetTotpCredential(ctx, "enabled")
	assert.NoError(t, err)
}

func TestMemoryStore_Enrollment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := twofactor.NewMemoryStore()

	_, err := s.GetEnrollment(ctx, "u1")
	require.ErrorIs(t, err, twofactor.ErrNotFound)

	e := twofactor.Enrollment{UserID: "u1", State: twofactor.StateAwaitingVerification, Method: twofactor.MethodEmail, UpdatedAt: baseTime}
	require.NoError(t, s.SaveEnrollment(ctx, e))

	got, err := s.GetEnrollment(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := twofactor.NewMemoryStore()
	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.RedeemRecoveryCode(ctx, "u1", "h", baseTime)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	storetest.Run(t, twofactor.NewMemoryStore())
}
