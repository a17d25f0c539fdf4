package twofactor

import (
	"slices"
	"time"
)

// Method is a second factor a user can verify with.
type Method string

const (
	MethodTOTP     Method = "totp"
	MethodEmail    Method = "email"
	MethodRecovery Method = "recovery"
)

// ParseMethod validates s. Recovery codes are a login-only method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodTOTP, MethodEmail, MethodRecovery:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// EnrollableMethods are the methods a user can choose during enrollment.
var EnrollableMethods = []Method{MethodTOTP, MethodEmail}

func enrollable(m Method) bool {
	return slices.Contains(EnrollableMethods, m)
}

// Purpose separates email codes issued during setup from those issued at login.
type Purpose string

const (
	PurposeSetup Purpose = "setup"
	PurposeLogin Purpose = "login"
)

// User is the identity anchor. Password handling lives elsewhere.
type User struct {
	ID               string
	Email            string
	TwoFactorEnabled bool
	TwoFactorMethod  Method // The method verified during enrollment
	CreatedAt        time.Time
}

// TotpCredential holds a user's encrypted TOTP secret.
type TotpCredential struct {
	UserID           string
	SecretCiphertext string
	EnabledAt        *time.Time // Nil until the first successful verification
	LastAcceptedStep int64      // Zero when no code has been accepted yet
	CreatedAt        time.Time
}

// Enabled reports whether the credential completed verification.
func (c TotpCredential) Enabled() bool {
	return c.EnabledAt != nil
}

// PendingEmailCode is a hashed one-time code awaiting verification.
type PendingEmailCode struct {
	UserID       string
	Purpose      Purpose
	CodeHash     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	AttemptCount int
}

// EmailCodeResult is the outcome of ConsumeEmailCode.
type EmailCodeResult int

const (
	EmailCodeMissing  EmailCodeResult = iota // No unconsumed code for (user, purpose)
	EmailCodeAccepted                        // Hash matched; the code is now consumed
	EmailCodeMismatch                        // Hash differed; attempt counted
	EmailCodeExpired                         // Past its TTL
	EmailCodeLocked                          // Attempt limit reached; a new code is required
)

func (r EmailCodeResult) String() string {
	switch r {
	case EmailCodeAccepted:
		return "accepted"
	case EmailCodeMismatch:
		return "mismatch"
	case EmailCodeExpired:
		return "expired"
	case EmailCodeLocked:
		return "locked"
	default:
		return "missing"
	}
}

// RecoveryCode is one stored, hashed single-use code.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// EnrollmentState is a state of the enrollment flow.
type EnrollmentState string

const (
	StateAwaitingMethodChoice EnrollmentState = "awaiting_method_choice"
	StateSettingUpTotp        EnrollmentState = "setting_up_totp"
	StateSendingEmailCode     EnrollmentState = "sending_email_code"
	StateAwaitingVerification EnrollmentState = "awaiting_verification"
	StateEnrolled             EnrollmentState = "enrolled"
)

// Enrollment is the persisted enrollment record. Only AwaitingMethodChoice,
// AwaitingVerification and Enrolled are ever stored.
type Enrollment struct {
	UserID    string
	State     EnrollmentState
	Method    Method // Chosen method; empty while awaiting a choice
	UpdatedAt time.Time
}

// ChallengeState is a state of a login challenge.
type ChallengeState string

const (
	ChallengeUnchallenged ChallengeState = "unchallenged"
	ChallengeOpen         ChallengeState = "challenged"
	ChallengeVerified     ChallengeState = "verified"
	ChallengeFailed       ChallengeState = "failed"
)

// Challenge correlates a login verification with a preceding password step.
type Challenge struct {
	ID              string
	UserID          string
	Methods         []Method
	MethodAttempted Method
	Attempts        int
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the challenge is past its lifetime at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Allows reports whether m is eligible for this challenge.
func (c Challenge) Allows(m Method) bool {
	return slices.Contains(c.Methods, m)
}
