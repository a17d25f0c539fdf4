package twofactor

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aitoolhub/accountsec/pkg/binder"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

var errMalformed = fmt.Errorf("%w: unexpected EOF", binder.ErrFailedToParseJSON)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{twofactor.ErrCodeExpired, http.StatusUnprocessableEntity, "code_expired"},
		{fmt.Errorf("submit: %w", twofactor.ErrInvalidCode), http.StatusUnprocessableEntity, "invalid_code"},
		{&twofactor.RetryError{Err: twofactor.ErrAttemptsExceeded, RetryAfter: time.Minute}, http.StatusTooManyRequests, "attempts_exceeded"},
		{twofactor.ErrResendTooSoon, http.StatusTooManyRequests, "resend_too_soon"},
		{twofactor.ErrChallengeExpired, http.StatusGone, "challenge_expired"},
		{twofactor.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{twofactor.ErrEnrollmentRequired, http.StatusForbidden, "enrollment_required"},
		{twofactor.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.Join(twofactor.ErrDeliveryFailed, errors.New("smtp down")), http.StatusBadGateway, "delivery_failed"},
		{twofactor.ErrSecretGenerationFailed, http.StatusInternalServerError, "internal_error"},
		{errors.Join(errUnauthorized, errors.New("no cookie")), http.StatusUnauthorized, "unauthorized"},
		{errMalformed, http.StatusBadRequest, "bad_request"},
		{twofactor.ErrInvalidEmail, http.StatusUnprocessableEntity, "invalid_email"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			info := classify(tt.err)
			assert.Equal(t, tt.status, info.status)
			assert.Equal(t, tt.code, info.code)
			assert.NotContains(t, info.message, "twofactor:")
		})
	}
}

func TestStrategyFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, twofactor.StrategyRestart, strategyFor(errUnauthorized))
	assert.Equal(t, twofactor.StrategyRetry, strategyFor(errMalformed))
	assert.Equal(t, twofactor.StrategyRetry, strategyFor(fmt.Errorf("%w: text/plain", binder.ErrUnsupportedMediaType)))
	assert.Equal(t, twofactor.StrategyResend, strategyFor(twofactor.ErrCodeExpired))
	assert.Equal(t, twofactor.StrategyRestart, strategyFor(&twofactor.RetryError{
		Err:      twofactor.ErrAttemptsExceeded,
		Strategy: twofactor.StrategyRestart,
	}))
}
