package twofactor

import (
	"context"
	"time"
)

// Store persists 2FA credentials. Every method that checks and updates a
// record must do so atomically: two concurrent calls for the same user may
// not both succeed where only one should.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	// PutUser registers the identity anchor. Existing 2FA flags are preserved.
	PutUser(ctx context.Context, user User) error

	// SaveTotpSecret stores an encrypted secret pending verification,
	// replacing any earlier pending secret. It fails with ErrAlreadyEnrolled
	// when the user already has an enabled TOTP credential.
	SaveTotpSecret(ctx context.Context, userID, ciphertext string, now time.Time) error
	GetTotpCredential(ctx context.Context, userID string) (TotpCredential, error)
	// RecordTotpStep accepts step only if it is greater than the last accepted one.
	RecordTotpStep(ctx context.Context, userID string, step int64) (bool, error)
	// RewindTotpStep sets the last accepted step back to to, only while it is still from.
	RewindTotpStep(ctx context.Context, userID string, from, to int64) error

	// ActivateMethod marks method verified and sets two_factor_enabled. Idempotent.
	ActivateMethod(ctx context.Context, userID string, method Method, now time.Time) error

	// IssueEmailCode replaces the pending code for (UserID, Purpose). It
	// returns a *RetryError wrapping ErrResendTooSoon, leaving the existing
	// code untouched, while an unconsumed code younger than cooldown exists.
	IssueEmailCode(ctx context.Context, code PendingEmailCode, cooldown time.Duration) error
	// DeleteEmailCode removes the pending code only if its hash still matches.
	DeleteEmailCode(ctx context.Context, userID string, purpose Purpose, codeHash string) error
	// ConsumeEmailCode checks candidateHash against the pending code,
	// counting a failed attempt or consuming the code on a match.
	ConsumeEmailCode(ctx context.Context, userID string, purpose Purpose, candidateHash string, now time.Time, maxAttempts int) (EmailCodeResult, error)
	// RestoreEmailCode clears the consumed mark set at consumedAt, only while
	// the pending code still has codeHash and was not reissued since.
	RestoreEmailCode(ctx context.Context, userID string, purpose Purpose, codeHash string, consumedAt time.Time) error

	// ReplaceRecoveryCodes swaps the whole set of hashed codes at once.
	ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string, now time.Time) error
	// RedeemRecoveryCode marks the matching unused code as used and returns
	// how many unused codes remain.
	RedeemRecoveryCode(ctx context.Context, userID, candidateHash string, now time.Time) (remaining int, ok bool, err error)
	// RestoreRecoveryCode marks the code redeemed at usedAt as unused again.
	RestoreRecoveryCode(ctx context.Context, userID, codeHash string, usedAt time.Time) error
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)

	GetEnrollment(ctx context.Context, userID string) (Enrollment, error)
	SaveEnrollment(ctx context.Context, e Enrollment) error

	// DeleteExpired removes expired or consumed email codes and pending TOTP
	// secrets older than pendingSecretTTL. It returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time, pendingSecretTTL time.Duration) (int64, error)
}

// ChallengeStore holds short-lived login challenges.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c Challenge) error
	// GetChallenge returns ErrNotFound for unknown or expired challenges.
	GetChallenge(ctx context.Context, id string, now time.Time) (Challenge, error)
	// RecordChallengeFailure increments the attempt counter and returns the new value.
	RecordChallengeFailure(ctx context.Context, id string, method Method) (int, error)
	// DeleteChallenge reports whether this call removed the challenge.
	// Exactly one of several concurrent callers observes true.
	DeleteChallenge(ctx context.Context, id string) (bool, error)
}
