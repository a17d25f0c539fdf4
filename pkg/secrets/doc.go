// Package secrets protects two-factor material at rest.
//
// A single 32-byte master key (ACCOUNTSEC_MASTER_KEY, base64) is expanded with
// HKDF-SHA-256 into purpose-bound subkeys:
//
//   - an AES-256-GCM key that encrypts TOTP shared secrets before they reach
//     the credential store, with the owning user id as associated data;
//   - an HMAC-SHA-256 pepper used to hash email one-time codes and recovery
//     codes so the store never holds a value that can be replayed.
//
// # Usage
//
//	key, _ := secrets.ParseKey(os.Getenv("ACCOUNTSEC_MASTER_KEY"))
//	kr, _ := secrets.NewKeyring(key)
//
//	ct, _ := kr.Encrypt(totpSecret, userID.String())
//	pt, _ := kr.Decrypt(ct, userID.String())
//
//	h := kr.Hash(userID.String(), "login", "123456")
//	ok := secrets.Equal(h, stored)
//
// # Error Handling
//
// Errors wrap package sentinels such as ErrInvalidMasterKey, ErrDecryptionFailed
// and ErrInvalidCiphertext. Use errors.Is to match them.
package secrets
