package twofactor

import "time"

// EnrollmentView describes where a user is in the enrollment flow.
type EnrollmentView struct {
	UserID           string          `json:"user_id"`
	State            EnrollmentState `json:"state"`
	Method           Method          `json:"method,omitempty"`
	AvailableMethods []Method        `json:"available_methods,omitempty"`
}

// Setup is the method-specific payload returned after choosing a method.
// TOTP fills the provisioning fields, email fills the dispatch fields.
type Setup struct {
	Method            Method    `json:"method"`
	Secret            string    `json:"secret,omitempty"`
	ProvisioningURI   string    `json:"provisioning_uri,omitempty"`
	QRCode            string    `json:"qr_code,omitempty"`
	EmailSentTo       string    `json:"email_sent_to,omitempty"`
	CodeExpiresAt     time.Time `json:"code_expires_at,omitzero"`
	ResendAvailableAt time.Time `json:"resend_available_at,omitzero"`
}

// EnrollmentResult carries the plaintext recovery codes. They are
// returned exactly once and only their hashes are stored.
type EnrollmentResult struct {
	Method        Method   `json:"method"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// ChallengeView is the challenge handed to the client after the password step.
type ChallengeView struct {
	ID        string    `json:"challenge_id"`
	UserID    string    `json:"-"`
	Methods   []Method  `json:"methods"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmailDispatch reports a sent email code.
type EmailDispatch struct {
	SentTo            string    `json:"sent_to"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
}

// VerifiedSession is returned when a challenge is satisfied.
type VerifiedSession struct {
	Token                            string    `json:"token"`
	UserID                           string    `json:"user_id"`
	Method                           Method    `json:"method"`
	ExpiresAt                        time.Time `json:"expires_at"`
	RecoveryCodesRemaining           *int      `json:"recovery_codes_remaining,omitempty"`
	RegenerateRecoveryCodesSuggested bool      `json:"regenerate_recovery_codes_suggested,omitempty"`
}
