package token

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"strings"
)

// ParseToken checks the signature of a GenerateToken output and decodes its
// payload into T.
func ParseToken[T any](tok string, key []byte) (T, error) {
	var zero T
	if len(key) == 0 {
		return zero, ErrMissingKey
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return zero, ErrInvalidToken
	}
	var raw [2][]byte
	for i, part := range parts {
		b, err := b64.DecodeString(part)
		if err != nil {
			return zero, errors.Join(ErrInvalidToken, err)
		}
		raw[i] = b
	}
	data, sig := raw[0], raw[1]

	if !hmac.Equal(sig, sign(data, key)) {
		return zero, ErrSignatureInvalid
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return zero, errors.Join(ErrInvalidToken, err)
	}
	return payload, nil
}
