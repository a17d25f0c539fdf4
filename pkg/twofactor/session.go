package twofactor

import (
	"context"
	"time"

	"github.com/aitoolhub/accountsec/pkg/token"
)

// DefaultSessionTTL is the lifetime of tokens minted by TokenIssuer.
const DefaultSessionTTL = 12 * time.Hour

// Session is a fully authenticated session handed back after a challenge.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionIssuer mints a session once the second factor is verified.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID string, method Method, now time.Time) (Session, error)
}

// TokenIssuer issues HMAC-signed tokens carrying the user id and the
// method that satisfied the challenge.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer returns an issuer signing with key. A non-positive ttl
// falls back to DefaultSessionTTL.
func NewTokenIssuer(key []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) == 0 {
		return nil, token.ErrMissingKey
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenIssuer{key: key, ttl: ttl}, nil
}

func (i *TokenIssuer) IssueSession(_ context.Context, userID string, method Method, now time.Time) (Session, error) {
	claims := token.NewClaims(userID, string(method), now, i.ttl)
	tok, err := token.Issue(claims, i.key)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, ExpiresAt: time.Unix(claims.ExpiresAt, 0)}, nil
}

// VerifySession validates a token minted by IssueSession.
func (i *TokenIssuer) VerifySession(tok string, now time.Time) (token.Claims, error) {
	return token.Verify(tok, i.key, now)
}
