package token

import (
	"time"

	"github.com/google/uuid"
)

// Claims is the payload of a session token.
type Claims struct {
	ID        string `json:"jti"`
	Subject   string `json:"sub"`
	Method    string `json:"amr,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NewClaims returns claims for subject valid for ttl starting at now.
func NewClaims(subject, method string, now time.Time, ttl time.Duration) Claims {
	return Claims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Method:    method,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

// Expired reports whether the claims are past their expiry at now.
func (c Claims) Expired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}

// Issue signs claims.
func Issue(c Claims, key []byte) (string, error) {
	return GenerateToken(c, key)
}

// Verify parses a token produced by Issue and rejects it once expired.
func Verify(tok string, key []byte, now time.Time) (Claims, error) {
	c, err := ParseToken[Claims](tok, key)
	if err != nil {
		return Claims{}, err
	}
	if c.Expired(now) {
		return Claims{}, ErrTokenExpired
	}
	return c, nil
}
