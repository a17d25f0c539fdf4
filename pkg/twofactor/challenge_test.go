package twofactor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

func TestChallengeManager_BeginChallenge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires enrollment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.addUser(t, "u1")

		_, err := f.challenge.BeginChallenge(ctx, "u1")
		require.ErrorIs(t, err, twofactor.ErrEnrollmentRequired)
		assert.Equal(t, twofactor.StrategyRestart, twofactor.RetryStrategy(err))
	})

	t.Run("email user gets email and recovery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enrollEmail(t, "u1")

		ch, err := f.challenge.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		assert.NotEmpty(t, ch.ID)
		assert.Equal(t, []twofactor.Method{twofactor.MethodEmail, twofactor.MethodRecovery}, ch.Methods)
		assert.Equal(t, f.clock.Now().Add(5*time.Minute), ch.ExpiresAt)
	})

	t.Run("totp user gets all methods", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enrollTotp(t, "u1")

		ch, err := f.challenge.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []twofactor.Method{twofactor.MethodTOTP, twofactor.MethodEmail, twofactor.MethodRecovery}, ch.Methods)
	})
}

func TestChallengeManager_Totp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	secret := f.enrollTotp(t, "u1")

	// The enrollment code consumed the current step
	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, totpCode(t, secret, f.clock.Now()))
	require.ErrorIs(t, err, twofactor.ErrInvalidCode, "replayed code")

	f.clock.Advance(30 * time.Second)
	session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, totpCode(t, secret, f.clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, twofactor.MethodTOTP, session.Method)
	assert.Nil(t, session.RecoveryCodesRemaining)

	claims, err := f.sessions.VerifySession(session.Token, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "totp", claims.Method)

	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, totpCode(t, secret, f.clock.Now()))
	assert.ErrorIs(t, err, twofactor.ErrChallengeExpired, "challenge is discarded after success")
}

func TestChallengeManager_Email(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)

	d, err := f.challenge.SendChallengeEmail(ctx, ch.ID, "login-1")
	require.NoError(t, err)
	assert.Equal(t, "u***@example.com", d.SentTo)
	assert.Equal(t, "login", f.mailer.sent[len(f.mailer.sent)-1].Purpose)

	_, err = f.challenge.SendChallengeEmail(ctx, ch.ID, "login-2")
	require.ErrorIs(t, err, twofactor.ErrResendTooSoon)

	session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, f.mailer.lastCode(t))
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
}

func TestChallengeManager_RecoveryCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	codes := f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[3])
	require.NoError(t, err)
	assert.True(t, session.RegenerateRecoveryCodesSuggested)
	require.NotNil(t, session.RecoveryCodesRemaining)
	assert.Equal(t, 9, *session.RecoveryCodesRemaining)

	// Reusing a redeemed code yields no session
	ch, err = f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	session, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[3])
	require.ErrorIs(t, err, twofactor.ErrInvalidCode)
	assert.Empty(t, session.Token)

	// Lower-case input without the separator is accepted
	session, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, lower(codes[4]))
	require.NoError(t, err)
	assert.Equal(t, 8, *session.RecoveryCodesRemaining)
}

func TestChallengeManager_AttemptLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	_, err = f.challenge.SendChallengeEmail(ctx, ch.ID, "")
	require.NoError(t, err)
	code := f.mailer.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i <= 4; i++ {
		_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, wrong)
		require.ErrorIs(t, err, twofactor.ErrInvalidCode, "attempt %d", i)
		assert.Equal(t, twofactor.StrategyRetry, twofactor.RetryStrategy(err))
	}

	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, wrong)
	require.ErrorIs(t, err, twofactor.ErrAttemptsExceeded)

	session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, code)
	require.Error(t, err, "sixth submission is rejected even when correct")
	assert.Empty(t, session.Token)
	_, err = f.challenges.GetChallenge(ctx, ch.ID, f.clock.Now())
	assert.ErrorIs(t, err, twofactor.ErrNotFound, "failed challenge is discarded")
}

func TestChallengeManager_LoginBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := twofactor.DefaultConfig()
	cfg.LoginFailureBudget = 3
	f := newFixture(t, twofactor.WithConfig(cfg))
	codes := f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	for range 2 {
		_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, "AAAAA-AAAAA")
		require.ErrorIs(t, err, twofactor.ErrInvalidCode)
	}
	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, "AAAAA-AAAAA")
	require.ErrorIs(t, err, twofactor.ErrAttemptsExceeded)
	assert.Equal(t, twofactor.StrategyWait, twofactor.RetryStrategy(err))
	assert.Positive(t, twofactor.RetryAfter(err))

	_, err = f.challenge.BeginChallenge(ctx, "u1")
	require.ErrorIs(t, err, twofactor.ErrAttemptsExceeded)

	f.clock.Advance(15 * time.Minute)
	ch, err = f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[0])
	require.NoError(t, err)
}

func TestChallengeManager_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	codes := f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[0])
	require.ErrorIs(t, err, twofactor.ErrChallengeExpired)
	assert.Equal(t, twofactor.StrategyRestart, twofactor.RetryStrategy(err))

	_, err = f.challenge.SendChallengeEmail(ctx, ch.ID, "")
	assert.ErrorIs(t, err, twofactor.ErrChallengeExpired)

	n, err := f.store.CountRecoveryCodes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, n, "expired challenge must not burn a recovery code")
}

func TestChallengeManager_IneligibleMethod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enrollEmail(t, "u1")

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)

	_, err = f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, "123456")
	require.ErrorIs(t, err, twofactor.ErrInvalidMethod)

	_, err = f.challenge.SubmitChallengeCode(ctx, "", twofactor.MethodEmail, "123456")
	require.ErrorIs(t, err, twofactor.ErrChallengeExpired)
}

func TestChallengeManager_ConcurrentSubmissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	secret := f.enrollTotp(t, "u1")
	f.clock.Advance(30 * time.Second)

	ch, err := f.challenge.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	code := totpCode(t, secret, f.clock.Now())

	var sessions atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, code); err == nil {
				sessions.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), sessions.Load())
}

// claimedElsewhere loses every claim, as if a parallel request removed the
// challenge between verification and claiming.
type claimedElsewhere struct {
	*twofactor.MemoryChallengeStore
}

func (s claimedElsewhere) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	if _, err := s.MemoryChallengeStore.DeleteChallenge(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func TestChallengeManager_LostClaimRestoresCode(t *testing.T) {
	t.Parallel()

	t.Run("recovery code", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)
		codes := f.enrollEmail(t, "u1")

		cm, err := twofactor.NewChallengeManager(f.store, claimedElsewhere{twofactor.NewMemoryChallengeStore()},
			f.keys, f.mailer, f.sessions, twofactor.WithClock(f.clock))
		require.NoError(t, err)

		ch, err := cm.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		_, err = cm.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[0])
		require.ErrorIs(t, err, twofactor.ErrChallengeExpired)

		n, err := f.store.CountRecoveryCodes(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, len(codes), n, "code is not spent by a request that got no session")

		ch, err = f.challenge.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[0])
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
	})

	t.Run("email code", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)
		f.enrollEmail(t, "u1")

		cm, err := twofactor.NewChallengeManager(f.store, claimedElsewhere{twofactor.NewMemoryChallengeStore()},
			f.keys, f.mailer, f.sessions, twofactor.WithClock(f.clock))
		require.NoError(t, err)

		ch, err := cm.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		_, err = cm.SendChallengeEmail(ctx, ch.ID, "")
		require.NoError(t, err)
		code := f.mailer.lastCode(t)
		_, err = cm.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, code)
		require.ErrorIs(t, err, twofactor.ErrChallengeExpired)

		ch, err = f.challenge.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodEmail, code)
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
	})

	t.Run("totp code", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)
		secret := f.enrollTotp(t, "u1")
		f.clock.Advance(30 * time.Second)

		cm, err := twofactor.NewChallengeManager(f.store, claimedElsewhere{twofactor.NewMemoryChallengeStore()},
			f.keys, f.mailer, f.sessions, twofactor.WithClock(f.clock))
		require.NoError(t, err)

		ch, err := cm.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		code := totpCode(t, secret, f.clock.Now())
		_, err = cm.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, code)
		require.ErrorIs(t, err, twofactor.ErrChallengeExpired)

		ch, err = f.challenge.BeginChallenge(ctx, "u1")
		require.NoError(t, err)
		session, err := f.challenge.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodTOTP, code)
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
	})
}

func TestChallengeManager_SessionIssuerFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	codes := f.enrollEmail(t, "u1")

	cm, err := twofactor.NewChallengeManager(f.store, f.challenges, f.keys, f.mailer, failingIssuer{},
		twofactor.WithClock(f.clock))
	require.NoError(t, err)

	ch, err := cm.BeginChallenge(ctx, "u1")
	require.NoError(t, err)
	_, err = cm.SubmitChallengeCode(ctx, ch.ID, twofactor.MethodRecovery, codes[0])
	require.Error(t, err)
	assert.False(t, errors.Is(err, twofactor.ErrInvalidCode))
}

type failingIssuer struct{}

func (failingIssuer) IssueSession(context.Context, string, twofactor.Method, time.Time) (twofactor.Session, error) {
	return twofactor.Session{}, errors.New("issuer offline")
}

func lower(code string) string {
	out := make([]byte, 0, len(code))
	for i := range len(code) {
		c := code[i]
		if c == '-' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
