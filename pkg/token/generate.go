package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
)

const secretSize = 32

var b64 = base64.RawURLEncoding

// GenerateToken returns base64url(json(payload)) + "." + base64url(hmac).
func GenerateToken[T any](payload T, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	return b64.EncodeToString(data) + "." + b64.EncodeToString(sign(data, key)), nil
}

// GenerateSecret returns a random signing key suitable for GenerateToken,
// base64url encoded.
func GenerateSecret() (string, error) {
	var key [secretSize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", err
	}
	return b64.EncodeToString(key[:]), nil
}

func sign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
