package twofactor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/totp"
)

const emailCodeDigits = 6

var emailCodeSpace = big.NewInt(1_000_000)

// Keyring protects secrets at rest. *secrets.Keyring satisfies it.
type Keyring interface {
	Encrypt(plaintext, associatedData string) (string, error)
	Decrypt(ciphertext, associatedData string) (string, error)
	Hash(parts ...string) string
	Pepper() []byte
}

// Mailer delivers one-time codes. *email.CodeMailer satisfies it.
type Mailer interface {
	SendCode(ctx context.Context, msg email.CodeMessage) error
}

func generateEmailCode() (string, error) {
	n, err := rand.Int(rand.Reader, emailCodeSpace)
	if err != nil {
		return "", errors.Join(ErrSecretGenerationFailed, err)
	}
	return fmt.Sprintf("%0*d", emailCodeDigits, n.Int64()), nil
}

func hashEmailCode(k Keyring, userID string, purpose Purpose, code string) string {
	return k.Hash("email-code", userID, string(purpose), totp.NormalizeCode(code))
}

func hashRecoveryCode(k Keyring, code string) string {
	return totp.HashRecoveryCode(code, k.Pepper())
}

func secretAD(userID string) string {
	return "totp:" + userID
}
