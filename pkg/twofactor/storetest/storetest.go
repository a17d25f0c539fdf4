// Package storetest holds behavioural tests every twofactor.Store
// implementation must pass.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

// Run exercises store. Every subtest registers its own user so a shared
// database can be reused between runs.
func Run(t *testing.T, store twofactor.Store) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newUser := func(t *testing.T) string {
		t.Helper()
		id := uuid.NewString()
		require.NoError(t, store.PutUser(context.Background(), twofactor.User{
			ID:        id,
			Email:     id + "@example.com",
			CreatedAt: now,
		}))
		return id
	}

	t.Run("user round trip", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)

		u, err := store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id+"@example.com", u.Email)
		assert.False(t, u.TwoFactorEnabled)

		_, err = store.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, twofactor.ErrNotFound)
	})

	t.Run("email code lifecycle", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)
		code := twofactor.PendingEmailCode{
			UserID:    id,
			Purpose:   twofactor.PurposeSetup,
			CodeHash:  "hash-1",
			IssuedAt:  now,
			ExpiresAt: now.Add(10 * time.Minute),
		}
		require.NoError(t, store.IssueEmailCode(ctx, code, time.Minute))

		resend := code
		resend.CodeHash = "hash-2"
		resend.IssuedAt = now.Add(10 * time.Second)
		err := store.IssueEmailCode(ctx, resend, time.Minute)
		require.ErrorIs(t, err, twofactor.ErrResendTooSoon)
		assert.Equal(t, 50*time.Second, twofactor.RetryAfter(err))

		res, err := store.ConsumeEmailCode(ctx, id, twofactor.PurposeSetup, "wrong", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeMismatch, res)

		res, err = store.ConsumeEmailCode(ctx, id, twofactor.PurposeSetup, "hash-1", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)

		res, err = store.ConsumeEmailCode(ctx, id, twofactor.PurposeSetup, "hash-1", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeMissing, res)

		resend.IssuedAt = now.Add(20 * time.Second)
		require.NoError(t, store.IssueEmailCode(ctx, resend, time.Minute), "consumed code does not hold the cooldown")
	})

	t.Run("email code locks after max attempts", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)
		require.NoError(t, store.IssueEmailCode(ctx, twofactor.PendingEmailCode{
			UserID:    id,
			Purpose:   twofactor.PurposeLogin,
			CodeHash:  "right",
			IssuedAt:  now,
			ExpiresAt: now.Add(10 * time.Minute),
		}, time.Minute))

		for range 2 {
			res, err := store.ConsumeEmailCode(ctx, id, twofactor.PurposeLogin, "wrong", now, 3)
			require.NoError(t, err)
			assert.Equal(t, twofactor.EmailCodeMismatch, res)
		}
		res, err := store.ConsumeEmailCode(ctx, id, twofactor.PurposeLogin, "wrong", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeLocked, res)

		res, err = store.ConsumeEmailCode(ctx, id, twofactor.PurposeLogin, "right", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeLocked, res)
	})

	t.Run("totp step is monotonic", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)
		require.NoError(t, store.SaveTotpSecret(ctx, id, "ciphertext", now))

		ok, err := store.RecordTotpStep(ctx, id, 100)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.RecordTotpStep(ctx, id, 100)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.RecordTotpStep(ctx, id, 99)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.ActivateMethod(ctx, id, twofactor.MethodTOTP, now))
		require.NoError(t, store.ActivateMethod(ctx, id, twofactor.MethodTOTP, now))
		assert.ErrorIs(t, store.SaveTotpSecret(ctx, id, "other", now), twofactor.ErrAlreadyEnrolled)

		cred, err := store.GetTotpCredential(ctx, id)
		require.NoError(t, err)
		assert.True(t, cred.Enabled())
		assert.Equal(t, int64(100), cred.LastAcceptedStep)

		u, err := store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.True(t, u.TwoFactorEnabled)
		assert.Equal(t, twofactor.MethodTOTP, u.TwoFactorMethod)
	})

	t.Run("recovery codes redeem once under contention", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)
		require.NoError(t, store.ReplaceRecoveryCodes(ctx, id, []string{"a", "b", "c"}, now))

		var redeemed atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := store.RedeemRecoveryCode(ctx, id, "a", now); err == nil && ok {
					redeemed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), redeemed.Load())

		n, err := store.CountRecoveryCodes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, store.ReplaceRecoveryCodes(ctx, id, []string{"x"}, now))
		_, ok, err := store.RedeemRecoveryCode(ctx, id, "b", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("restore reverses only its own write", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)

		require.NoError(t, store.ReplaceRecoveryCodes(ctx, id, []string{"a", "b"}, now))
		_, ok, err := store.RedeemRecoveryCode(ctx, id, "a", now)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.RestoreRecoveryCode(ctx, id, "a", now.Add(time.Second)), "other redemption time is ignored")
		n, err := store.CountRecoveryCodes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, store.RestoreRecoveryCode(ctx, id, "a", now))
		n, err = store.CountRecoveryCodes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, store.IssueEmailCode(ctx, twofactor.PendingEmailCode{
			UserID:    id,
			Purpose:   twofactor.PurposeLogin,
			CodeHash:  "e1",
			IssuedAt:  now,
			ExpiresAt: now.Add(10 * time.Minute),
		}, time.Minute))
		res, err := store.ConsumeEmailCode(ctx, id, twofactor.PurposeLogin, "e1", now, 3)
		require.NoError(t, err)
		require.Equal(t, twofactor.EmailCodeAccepted, res)
		require.NoError(t, store.RestoreEmailCode(ctx, id, twofactor.PurposeLogin, "other", now))
		require.NoError(t, store.RestoreEmailCode(ctx, id, twofactor.PurposeLogin, "e1", now))
		res, err = store.ConsumeEmailCode(ctx, id, twofactor.PurposeLogin, "e1", now, 3)
		require.NoError(t, err)
		assert.Equal(t, twofactor.EmailCodeAccepted, res)

		require.NoError(t, store.SaveTotpSecret(ctx, id, "ciphertext", now))
		ok, err = store.RecordTotpStep(ctx, id, 200)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.RewindTotpStep(ctx, id, 199, 0), "stale rewind is ignored")
		cred, err := store.GetTotpCredential(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(200), cred.LastAcceptedStep)
		require.NoError(t, store.RewindTotpStep(ctx, id, 200, 0))
		ok, err = store.RecordTotpStep(ctx, id, 200)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("enrollment round trip", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)

		_, err := store.GetEnrollment(ctx, id)
		require.ErrorIs(t, err, twofactor.ErrNotFound)

		e := twofactor.Enrollment{UserID: id, State: twofactor.StateAwaitingVerification, Method: twofactor.MethodEmail, UpdatedAt: now}
		require.NoError(t, store.SaveEnrollment(ctx, e))
		e.State = twofactor.StateEnrolled
		require.NoError(t, store.SaveEnrollment(ctx, e))

		got, err := store.GetEnrollment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, e.State, got.State)
		assert.Equal(t, e.Method, got.Method)
		assert.True(t, e.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("sweep removes expired state", func(t *testing.T) {
		ctx := context.Background()
		id := newUser(t)
		require.NoError(t, store.IssueEmailCode(ctx, twofactor.PendingEmailCode{
			UserID:    id,
			Purpose:   twofactor.PurposeLogin,
			CodeHash:  "h",
			IssuedAt:  now.Add(-time.Hour),
			ExpiresAt: now.Add(-50 * time.Minute),
		}, time.Minute))
		require.NoError(t, store.SaveTotpSecret(ctx, id, "stale", now.Add(-48*time.Hour)))

		n, err := store.DeleteExpired(ctx, now, 24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(2))

		_, err = store.GetTotpCredential(ctx, id)
		assert.ErrorIs(t, err, twofactor.ErrNotFound)
	})
}
