package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// RFC 6238 defaults. These are the only parameters authenticator apps agree on.
const (
	DefaultDigits    = 6
	DefaultPeriod    = 30
	DefaultAlgorithm = "SHA1"
	DefaultSkew      = 1

	secretBytes = 20
)

var (
	// ValidateSecretKeyRegex matches upper-case base32 with optional padding.
	ValidateSecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	codePattern = regexp.MustCompile(`^[0-9]{` + strconv.Itoa(DefaultDigits) + `}$`)

	hotpOpts = hotp.ValidateOpts{Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
)

// TOTPParams describes an otpauth:// provisioning URI.
type TOTPParams struct {
	Secret      string // base32 secret, required
	AccountName string // required, usually the email address
	Issuer      string // required, shown by the authenticator app
	Algorithm   string // defaults to SHA1
	Digits      int    // defaults to 6
	Period      int    // seconds, defaults to 30
}

// Validate checks the required fields.
func (p TOTPParams) Validate() error {
	switch {
	case p.Secret == "":
		return ErrMissingSecret
	case !ValidateSecretKeyRegex.MatchString(p.Secret):
		return ErrInvalidSecret
	case p.AccountName == "":
		return ErrMissingAccountName
	case p.Issuer == "":
		return ErrMissingIssuer
	}
	return nil
}

// GetDefaults fills zero-valued optional fields.
func (p TOTPParams) GetDefaults() TOTPParams {
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	return p
}

// GenerateSecretKey returns a fresh 160-bit secret, base32 without padding.
// An error means the entropy source failed and must not be retried.
func GenerateSecretKey() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// GetTOTPURI builds the Key URI Format string understood by authenticator
// apps: otpauth://totp/Issuer:account?secret=...
func GetTOTPURI(params TOTPParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	params = params.GetDefaults()

	q := url.Values{}
	q.Set("secret", params.Secret)
	q.Set("issuer", params.Issuer)
	q.Set("algorithm", params.Algorithm)
	q.Set("digits", strconv.Itoa(params.Digits))
	q.Set("period", strconv.Itoa(params.Period))

	u := url.URL{
		Scheme:   "otpauth",
		Opaque:   "//totp/" + url.PathEscape(params.Issuer) + ":" + url.PathEscape(params.AccountName),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// Step returns the time step containing t.
func Step(t time.Time) int64 {
	return t.Unix() / DefaultPeriod
}

// CodeForStep returns the code for an explicit counter value.
func CodeForStep(secret string, step int64) (string, error) {
	secret, err := normalizeSecret(secret)
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateTOTP, err)
	}
	code, err := hotp.GenerateCodeCustom(secret, uint64(step), hotpOpts)
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateTOTP, ErrInvalidSecret, err)
	}
	return code, nil
}

// ComputeCode returns the code for the step containing t.
func ComputeCode(secret string, t time.Time) (string, error) {
	return CodeForStep(secret, Step(t))
}

// VerifyCode reports whether candidate matches within DefaultSkew steps of t.
func VerifyCode(secret, candidate string, t time.Time) (bool, error) {
	_, ok, err := MatchStep(secret, candidate, t, DefaultSkew)
	return ok, err
}

// MatchStep compares candidate with every step in [Step(t)-skew, Step(t)+skew]
// and returns the latest matching step. The whole window is always evaluated
// and compared in constant time.
func MatchStep(secret, candidate string, t time.Time, skew int) (int64, bool, error) {
	if skew < 0 {
		return 0, false, ErrInvalidSkew
	}
	secret, err := normalizeSecret(secret)
	if err != nil {
		return 0, false, errors.Join(ErrFailedToValidateTOTP, err)
	}
	candidate = NormalizeCode(candidate)
	if !codePattern.MatchString(candidate) {
		return 0, false, ErrInvalidOTP
	}

	var (
		current = Step(t)
		matched int64
		hit     int
	)
	for s := current - int64(skew); s <= current+int64(skew); s++ {
		code, err := hotp.GenerateCodeCustom(secret, uint64(s), hotpOpts)
		if err != nil {
			return 0, false, errors.Join(ErrFailedToValidateTOTP, ErrInvalidSecret, err)
		}
		eq := subtle.ConstantTimeCompare([]byte(code), []byte(candidate))
		matched = int64(subtle.ConstantTimeSelect(eq, int(s), int(matched)))
		hit |= eq
	}
	return matched, hit == 1, nil
}

// NormalizeCode drops spaces, tabs and dashes used to group digits.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		}
		return r
	}, code)
}

func normalizeSecret(secret string) (string, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	switch {
	case secret == "":
		return "", ErrMissingSecret
	case !ValidateSecretKeyRegex.MatchString(secret):
		return "", ErrInvalidSecret
	}
	return strings.TrimRight(secret, "="), nil
}
