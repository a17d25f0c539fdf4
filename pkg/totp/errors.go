package totp

import "errors"

var (
	ErrMissingSecret      = errors.New("totp: missing secret")
	ErrInvalidSecret      = errors.New("totp: secret is not base32")
	ErrMissingAccountName = errors.New("totp: missing account name")
	ErrMissingIssuer      = errors.New("totp: missing issuer")
	ErrInvalidOTP         = errors.New("totp: code must be 6 digits")
	ErrInvalidSkew        = errors.New("totp: skew must not be negative")

	ErrFailedToGenerateSecretKey = errors.New("totp: generate secret")
	ErrFailedToGenerateTOTP      = errors.New("totp: compute code")
	ErrFailedToValidateTOTP      = errors.New("totp: validate code")
	ErrFailedToGenerateQRCode    = errors.New("totp: render qr code")

	ErrInvalidRecoveryCodeCount     = errors.New("totp: recovery code count must be positive")
	ErrFailedToGenerateRecoveryCode = errors.New("totp: generate recovery code")
	ErrInvalidRecoveryCode          = errors.New("totp: malformed recovery code")
)
