package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// recoveryAlphabet omits 0/O and 1/I so codes survive being read aloud or handwritten.
	// 32 symbols means the low five bits of a random byte pick a symbol without bias.
	recoveryAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

	recoveryGroupSize = 5
	recoveryGroups    = 2
)

var recoverySymbols = func() [256]bool {
	var set [256]bool
	for i := range len(recoveryAlphabet) {
		set[recoveryAlphabet[i]] = true
	}
	return set
}()

// GenerateRecoveryCodes creates cryptographically secure backup codes for account recovery.
// Each code has the form XXXXX-XXXXX drawn from a 32-symbol unambiguous alphabet
// (50 bits of entropy per code).
func GenerateRecoveryCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidRecoveryCodeCount
	}

	const length = recoveryGroupSize * recoveryGroups
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		raw := make([]byte, length)
		if _, err := rand.Read(raw); err != nil {
			return nil, errors.Join(ErrFailedToGenerateRecoveryCode, err)
		}

		var sb strings.Builder
		sb.Grow(length + recoveryGroups - 1)
		for i, b := range raw {
			if i > 0 && i%recoveryGroupSize == 0 {
				sb.WriteByte('-')
			}
			sb.WriteByte(recoveryAlphabet[b&0x1f])
		}

		code := sb.String()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeRecoveryCode canonicalizes user input: upper-case, no separators or spaces.
// It returns ErrInvalidRecoveryCode when the result cannot be a code issued by
// GenerateRecoveryCodes.
func NormalizeRecoveryCode(code string) (string, error) {
	code = strings.ToUpper(NormalizeCode(code))
	if len(code) != recoveryGroupSize*recoveryGroups {
		return "", ErrInvalidRecoveryCode
	}
	for i := range len(code) {
		if !recoverySymbols[code[i]] {
			return "", ErrInvalidRecoveryCode
		}
	}
	return code, nil
}

// HashRecoveryCode returns the keyed hash stored in place of the plaintext code.
// The code is normalized first so "abcde-fghjk" and "ABCDEFGHJK" hash identically.
// A nil pepper falls back to an unkeyed HMAC, which is only suitable for tests.
func HashRecoveryCode(code string, pepper []byte) string {
	if normalized, err := NormalizeRecoveryCode(code); err == nil {
		code = normalized
	}
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
