package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/totp"
)

// verifier holds the code checks and email dispatch shared by both managers.
type verifier struct {
	store  Store
	keys   Keyring
	mailer Mailer
	cfg    Config
	clock  Clock
	log    *slog.Logger
}

// sendEmailCode issues a fresh code for (user, purpose) and delivers it.
// The store enforces the resend cooldown before anything is sent.
func (v *verifier) sendEmailCode(ctx context.Context, user User, purpose Purpose, requestID string) (EmailDispatch, error) {
	if user.Email == "" || !email.ValidAddress(user.Email) {
		return EmailDispatch{}, fmt.Errorf("%w: user has no deliverable address", ErrDeliveryFailed)
	}

	code, err := generateEmailCode()
	if err != nil {
		return EmailDispatch{}, err
	}

	now := v.clock.Now()
	pending := PendingEmailCode{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hashEmailCode(v.keys, user.ID, purpose, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(v.cfg.EmailCodeTTL),
	}
	if err := v.store.IssueEmailCode(ctx, pending, v.cfg.ResendCooldown); err != nil {
		return EmailDispatch{}, err
	}

	err = v.mailer.SendCode(ctx, email.CodeMessage{
		RequestID: requestID,
		To:        user.Email,
		Code:      code,
		Purpose:   string(purpose),
		ExpiresAt: pending.ExpiresAt,
	})
	if err != nil {
		// Release the cooldown so the user can ask again right away
		if derr := v.store.DeleteEmailCode(context.WithoutCancel(ctx), user.ID, purpose, pending.CodeHash); derr != nil {
			v.log.ErrorContext(ctx, "failed to release undelivered email code",
				logger.UserID(user.ID),
				logger.Purpose(purpose),
				logger.Error(derr),
			)
		}
		return EmailDispatch{}, errors.Join(ErrDeliveryFailed, err)
	}

	v.log.InfoContext(ctx, "email code issued",
		logger.UserID(user.ID),
		logger.Purpose(purpose),
	)
	return EmailDispatch{
		SentTo:            logger.MaskEmail(user.Email),
		ExpiresAt:         pending.ExpiresAt,
		ResendAvailableAt: now.Add(v.cfg.ResendCooldown),
	}, nil
}

// undoFunc reverses a successful code check whose login could not complete.
// It only applies while the stored record still carries the check's write.
type undoFunc func(ctx context.Context) error

// checkEmailCode consumes a pending code. Missing and expired codes are
// reported as ErrCodeExpired so the caller knows to resend.
func (v *verifier) checkEmailCode(ctx context.Context, userID string, purpose Purpose, code string, now time.Time) (undoFunc, error) {
	hash := hashEmailCode(v.keys, userID, purpose, code)
	res, err := v.store.ConsumeEmailCode(ctx, userID, purpose, hash, now, v.cfg.MaxEmailAttempts)
	if err != nil {
		return nil, err
	}
	switch res {
	case EmailCodeAccepted:
		return func(ctx context.Context) error {
			return v.store.RestoreEmailCode(ctx, userID, purpose, hash, now)
		}, nil
	case EmailCodeMismatch:
		return nil, ErrInvalidCode
	case EmailCodeLocked:
		return nil, &RetryError{Err: ErrAttemptsExceeded, Strategy: StrategyResend}
	default:
		return nil, ErrCodeExpired
	}
}

// checkTotpCode verifies code against the stored secret and records the
// matched step so the same code cannot be replayed.
func (v *verifier) checkTotpCode(ctx context.Context, userID, code string, now time.Time) (undoFunc, error) {
	cred, err := v.store.GetTotpCredential(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	secret, err := v.keys.Decrypt(cred.SecretCiphertext, secretAD(userID))
	if err != nil {
		return nil, fmt.Errorf("decrypt totp secret: %w", err)
	}

	step, ok, err := totp.MatchStep(secret, code, now, v.cfg.TotpSkew)
	if errors.Is(err, totp.ErrInvalidOTP) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	fresh, err := v.store.RecordTotpStep(ctx, userID, step)
	if err != nil {
		return nil, err
	}
	if !fresh {
		v.log.WarnContext(ctx, "totp code replay rejected", logger.UserID(userID))
		return nil, ErrInvalidCode
	}
	prev := cred.LastAcceptedStep
	return func(ctx context.Context) error {
		return v.store.RewindTotpStep(ctx, userID, step, prev)
	}, nil
}

// checkRecoveryCode redeems code and returns how many unused codes remain.
func (v *verifier) checkRecoveryCode(ctx context.Context, userID, code string, now time.Time) (int, undoFunc, error) {
	normalized, err := totp.NormalizeRecoveryCode(code)
	if err != nil {
		return 0, nil, ErrInvalidCode
	}
	hash := hashRecoveryCode(v.keys, normalized)
	remaining, ok, err := v.store.RedeemRecoveryCode(ctx, userID, hash, now)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, ErrInvalidCode
	}
	return remaining, func(ctx context.Context) error {
		return v.store.RestoreRecoveryCode(ctx, userID, hash, now)
	}, nil
}

// issueRecoveryCodes replaces the user's set and returns the plaintext codes.
func (v *verifier) issueRecoveryCodes(ctx context.Context, userID string, now time.Time) ([]string, error) {
	codes, err := totp.GenerateRecoveryCodes(v.cfg.RecoveryCodeCount)
	if err != nil {
		return nil, errors.Join(ErrSecretGenerationFailed, err)
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = hashRecoveryCode(v.keys, c)
	}
	if err := v.store.ReplaceRecoveryCodes(ctx, userID, hashes, now); err != nil {
		return nil, err
	}
	return codes, nil
}

// codeRejected reports whether err is a verdict on the submitted code
// rather than an infrastructure failure.
func codeRejected(err error) bool {
	return errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrAttemptsExceeded)
}
