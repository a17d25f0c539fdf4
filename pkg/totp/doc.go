// Package totp implements the cryptographic primitives behind two-factor
// enrollment: secret generation, RFC 4226/6238 code computation and
// verification, provisioning URIs and QR images, and single-use recovery codes.
//
// The package is stateless and never remembers which codes were accepted.
// Replay prevention belongs to the caller, which records the step returned by
// MatchStep.
//
// # Codes
//
// Codes are 6 digits over a 30 second step using HMAC-SHA1, computed with
// github.com/pquerna/otp/hotp. CodeForStep exposes the raw counter form. VerifyCode accepts
// the current step and DefaultSkew steps on each side to tolerate clock drift.
// MatchStep exposes the matched step and a configurable skew. Every step in the
// window is computed and compared in constant time.
//
//	secret, _ := totp.GenerateSecretKey()
//	uri, _ := totp.GetTOTPURI(totp.TOTPParams{
//	    Secret:      secret,
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//	img, _ := totp.QRCode(uri, 0)
//
//	step, ok, err := totp.MatchStep(secret, "123456", time.Now(), totp.DefaultSkew)
//
// # Recovery codes
//
// GenerateRecoveryCodes returns human-typable codes such as "7KQ2M-XH9PD".
// Only HashRecoveryCode output should be persisted. Hashing normalizes first,
// so case and separator differences do not matter.
//
// # Error Handling
//
// Errors are package sentinels (ErrInvalidSecret, ErrInvalidOTP,
// ErrFailedToGenerateSecretKey, ...) optionally joined with the underlying cause.
// Inspect them with errors.Is.
//
// # See Also
//
//   - RFC 4226 – HMAC-Based One-Time Password (HOTP) Algorithm
//   - RFC 6238 – Time-Based One-Time Password (TOTP) Algorithm
package totp
