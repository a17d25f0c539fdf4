package token

import "errors"

var (
	ErrMissingKey       = errors.New("token: signing key is empty")
	ErrInvalidToken     = errors.New("token: malformed")
	ErrSignatureInvalid = errors.New("token: signature mismatch")
	ErrTokenExpired     = errors.New("token: expired")
)
