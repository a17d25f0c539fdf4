// Package twofactor implements mandatory two-factor enrollment and the
// login-time challenge that follows a successful password check.
//
// Two methods are supported: a TOTP authenticator app and a one-time code
// sent by email. Single-use recovery codes are issued when enrollment
// completes and are accepted at login as a fallback.
//
// # Enrollment
//
// EnrollmentManager moves a user through
//
//	awaiting_method_choice -> setting_up_totp | sending_email_code -> awaiting_verification -> enrolled
//
// Only the stable states are persisted. SubmitEnrollmentCode activates the
// method and returns the plaintext recovery codes exactly once. Repeated
// failures send the user back to method selection until the failure
// window passes.
//
//	em, err := twofactor.NewEnrollmentManager(store, keyring, mailer,
//		twofactor.WithConfig(cfg),
//		twofactor.WithLogger(log),
//	)
//	setup, err := em.SelectMethod(ctx, userID, twofactor.MethodTOTP, "")
//	// show setup.QRCode, then
//	res, err := em.SubmitEnrollmentCode(ctx, userID, code)
//
// # Challenges
//
// ChallengeManager issues a short-lived challenge listing the eligible
// methods and exchanges one correct code for a session from the
// configured SessionIssuer. A challenge that exceeds its attempt limit or
// lifetime is discarded and the login has to restart.
//
// # Stores
//
// Store and ChallengeStore perform every check-and-update atomically.
// MemoryStore and MemoryChallengeStore live in this package. The
// pgstore and redisstore subpackages provide durable implementations.
//
// # Errors
//
// Failures are reported with the sentinel errors in errors.go.
// RetryStrategy and RetryAfter tell callers whether to retry, resend, wait
// or restart without revealing which check failed.
package twofactor
