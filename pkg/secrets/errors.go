package secrets

import "errors"

var (
	ErrInvalidMasterKey    = errors.New("secrets: master key must be 32 bytes")
	ErrMasterKeyNotSet     = errors.New("secrets: master key not set")
	ErrKeyDerivationFailed = errors.New("secrets: key derivation failed")
	ErrEncryptionFailed    = errors.New("secrets: encryption failed")
	ErrDecryptionFailed    = errors.New("secrets: decryption failed")
	ErrInvalidCiphertext   = errors.New("secrets: malformed ciphertext")
)
