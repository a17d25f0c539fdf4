package twofactor

import (
	"fmt"
	"time"
)

// Config holds the verification policy.
type Config struct {
	Issuer                     string        `env:"TWOFACTOR_ISSUER" envDefault:"AccountSec"`
	EmailCodeTTL               time.Duration `env:"TWOFACTOR_EMAIL_CODE_TTL" envDefault:"10m"`
	ResendCooldown             time.Duration `env:"TWOFACTOR_RESEND_COOLDOWN" envDefault:"60s"`
	MaxEmailAttempts           int           `env:"TWOFACTOR_MAX_EMAIL_ATTEMPTS" envDefault:"5"`
	MaxChallengeAttempts       int           `env:"TWOFACTOR_MAX_CHALLENGE_ATTEMPTS" envDefault:"5"`
	RecoveryCodeCount          int           `env:"TWOFACTOR_RECOVERY_CODE_COUNT" envDefault:"10"`
	TotpSkew                   int           `env:"TWOFACTOR_TOTP_SKEW" envDefault:"1"`
	ChallengeTTL               time.Duration `env:"TWOFACTOR_CHALLENGE_TTL" envDefault:"5m"`
	EnrollmentFailureThreshold int           `env:"TWOFACTOR_ENROLLMENT_FAILURES" envDefault:"5"`
	EnrollmentFailureWindow    time.Duration `env:"TWOFACTOR_ENROLLMENT_FAILURE_WINDOW" envDefault:"15m"`
	LoginFailureBudget         int           `env:"TWOFACTOR_LOGIN_FAILURES" envDefault:"10"`
	LoginFailureWindow         time.Duration `env:"TWOFACTOR_LOGIN_FAILURE_WINDOW" envDefault:"15m"`
	PendingSecretTTL           time.Duration `env:"TWOFACTOR_PENDING_SECRET_TTL" envDefault:"24h"`
}

// DefaultConfig returns the same values as the env defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:                     "AccountSec",
		EmailCodeTTL:               10 * time.Minute,
		ResendCooldown:             60 * time.Second,
		MaxEmailAttempts:           5,
		MaxChallengeAttempts:       5,
		RecoveryCodeCount:          10,
		TotpSkew:                   1,
		ChallengeTTL:               5 * time.Minute,
		EnrollmentFailureThreshold: 5,
		EnrollmentFailureWindow:    15 * time.Minute,
		LoginFailureBudget:         10,
		LoginFailureWindow:         15 * time.Minute,
		PendingSecretTTL:           24 * time.Hour,
	}
}

// Validate rejects values that would disable a safeguard.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	case c.EmailCodeTTL <= 0:
		return fmt.Errorf("%w: email code ttl must be positive", ErrInvalidConfig)
	case c.ResendCooldown < 0 || c.ResendCooldown >= c.EmailCodeTTL:
		return fmt.Errorf("%w: resend cooldown must be within the email code ttl", ErrInvalidConfig)
	case c.MaxEmailAttempts < 1 || c.MaxChallengeAttempts < 1:
		return fmt.Errorf("%w: attempt limits must be at least 1", ErrInvalidConfig)
	case c.RecoveryCodeCount < 1:
		return fmt.Errorf("%w: recovery code count must be at least 1", ErrInvalidConfig)
	case c.TotpSkew < 0 || c.TotpSkew > 2:
		return fmt.Errorf("%w: totp skew must be between 0 and 2 steps", ErrInvalidConfig)
	case c.ChallengeTTL <= 0:
		return fmt.Errorf("%w: challenge ttl must be positive", ErrInvalidConfig)
	case c.EnrollmentFailureThreshold < 1 || c.EnrollmentFailureWindow <= 0:
		return fmt.Errorf("%w: enrollment failure policy must be positive", ErrInvalidConfig)
	case c.LoginFailureBudget < 1 || c.LoginFailureWindow <= 0:
		return fmt.Errorf("%w: login failure policy must be positive", ErrInvalidConfig)
	case c.PendingSecretTTL <= 0:
		return fmt.Errorf("%w: pending secret ttl must be positive", ErrInvalidConfig)
	}
	return nil
}
