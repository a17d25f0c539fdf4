package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
)

// Keyring holds the subkeys derived from a single master key.
// It is immutable after construction and safe for concurrent use.
type Keyring struct {
	aead   cipher.AEAD
	pepper []byte
}

// NewKeyring derives the encryption and hashing subkeys from masterKey.
// The master key itself is not retained.
func NewKeyring(masterKey []byte) (*Keyring, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidMasterKey
	}

	encKey, err := deriveKey(masterKey, infoSecretEncryption)
	if err != nil {
		return nil, err
	}
	defer clearBytes(encKey)

	pepper, err := deriveKey(masterKey, infoCodeHashing)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return &Keyring{aead: aead, pepper: pepper}, nil
}

// MustNewKeyring is like NewKeyring but panics on error.
func MustNewKeyring(masterKey []byte) *Keyring {
	k, err := NewKeyring(masterKey)
	if err != nil {
		panic(err)
	}
	return k
}

// Encrypt seals plaintext with AES-256-GCM and returns base64(nonce || ciphertext || tag).
// The associated data is authenticated but not stored; decrypting with a different
// value fails. Callers bind ciphertexts to their owner (for example the user id)
// so a row copied to another user cannot be opened.
func (k *Keyring) Encrypt(plaintext, associatedData string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := k.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associatedData))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. associatedData must match the value used at encryption.
func (k *Keyring) Decrypt(ciphertext, associatedData string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	nonceSize := k.aead.NonceSize()
	if len(raw) < nonceSize+k.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := k.aead.Open(nil, nonce, sealed, []byte(associatedData))
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// Pepper returns a copy of the HMAC key used for code hashing.
func (k *Keyring) Pepper() []byte {
	out := make([]byte, len(k.pepper))
	copy(out, k.pepper)
	return out
}

// Hash returns hex(HMAC-SHA256(pepper, parts)). Each part is length-prefixed so
// ("ab", "c") and ("a", "bc") never collide.
func (k *Keyring) Hash(parts ...string) string {
	mac := hmac.New(sha256.New, k.pepper)
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		mac.Write(size[:])
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two hashes in constant time.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
