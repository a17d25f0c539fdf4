// Package token provides compact signed tokens carrying a JSON payload.
//
// Token format: base64url(payload).base64url(HMAC-SHA256(payload))
//
// GenerateToken and ParseToken work with any payload type. Claims, Issue and
// Verify add the subject and expiry handling used for session tokens:
//
//	claims := token.NewClaims(userID, "totp", time.Now(), 12*time.Hour)
//	tok, err := token.Issue(claims, key)
//
//	claims, err = token.Verify(tok, key, time.Now())
//	if errors.Is(err, token.ErrTokenExpired) {
//		// ask the user to log in again
//	}
//
// Payloads are signed, not encrypted. Do not place secrets in them.
package token
