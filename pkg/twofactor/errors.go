package twofactor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMethod          = errors.New("twofactor: invalid method")
	ErrInvalidEmail           = errors.New("twofactor: invalid email address")
	ErrInvalidCode            = errors.New("twofactor: invalid code")
	ErrCodeExpired            = fmt.Errorf("%w: code expired", ErrInvalidCode)
	ErrResendTooSoon          = errors.New("twofactor: resend requested too soon")
	ErrAttemptsExceeded       = errors.New("twofactor: too many attempts")
	ErrChallengeExpired       = errors.New("twofactor: challenge expired")
	ErrDeliveryFailed         = errors.New("twofactor: code delivery failed")
	ErrSecretGenerationFailed = errors.New("twofactor: secret generation failed")

	ErrNotFound           = errors.New("twofactor: not found")
	ErrAlreadyEnrolled    = errors.New("twofactor: already enrolled")
	ErrNotEnrolled        = errors.New("twofactor: not enrolled")
	ErrEnrollmentRequired = errors.New("twofactor: enrollment required")
	ErrInvalidState       = errors.New("twofactor: operation not allowed in current state")
	ErrInvalidConfig      = errors.New("twofactor: invalid config")
)

// Strategy tells the caller how to recover from an error without revealing
// which check failed.
type Strategy string

const (
	StrategyNone    Strategy = ""
	StrategyRetry   Strategy = "retry"   // submit another code
	StrategyResend  Strategy = "resend"  // request a fresh email code
	StrategyWait    Strategy = "wait"    // back off for RetryAfter
	StrategyRestart Strategy = "restart" // start over from the password step or method choice
	StrategyFatal   Strategy = "fatal"   // not recoverable by the caller
)

// RetryError decorates an error with a backoff hint and, optionally, a
// strategy that overrides the one derived from the wrapped error.
type RetryError struct {
	Err        error
	RetryAfter time.Duration
	Strategy   Strategy
}

func (e *RetryError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
	}
	return e.Err.Error()
}

func (e *RetryError) Unwrap() error { return e.Err }

func retryAfter(err error, d time.Duration) error {
	return &RetryError{Err: err, RetryAfter: max(0, d)}
}

// RetryAfter returns the backoff attached to err, or zero.
func RetryAfter(err error) time.Duration {
	var re *RetryError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// RetryStrategy maps err to the action the caller should take next.
func RetryStrategy(err error) Strategy {
	if err == nil {
		return StrategyNone
	}
	var re *RetryError
	if errors.As(err, &re) && re.Strategy != StrategyNone {
		return re.Strategy
	}

	switch {
	case errors.Is(err, ErrSecretGenerationFailed), errors.Is(err, ErrInvalidConfig):
		return StrategyFatal
	case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrDeliveryFailed):
		return StrategyResend
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidMethod), errors.Is(err, ErrInvalidEmail):
		return StrategyRetry
	case errors.Is(err, ErrResendTooSoon), errors.Is(err, ErrAttemptsExceeded):
		return StrategyWait
	case errors.Is(err, ErrChallengeExpired), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrEnrollmentRequired), errors.Is(err, ErrAlreadyEnrolled),
		errors.Is(err, ErrNotEnrolled):
		return StrategyRestart
	case errors.Is(err, ErrNotFound):
		return StrategyFatal
	default:
		// Store and transport failures are transient from the caller's side
		return StrategyRetry
	}
}
