package twofactor

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/aitoolhub/accountsec/handler"
	"github.com/aitoolhub/accountsec/pkg/binder"
	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/requestid"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

const maxBodySize = 16 << 10

// errorInfo is the transport classification of a domain error.
type errorInfo struct {
	status  int
	code    string
	message string
}

var errUnauthorized = errors.New("unauthorized")

// classify maps an error to a status and a stable code.
// ErrCodeExpired wraps ErrInvalidCode and must be matched first.
func classify(err error) errorInfo {
	switch {
	case errors.Is(err, errUnauthorized):
		return errorInfo{http.StatusUnauthorized, "unauthorized", "Authentication required"}
	case badRequest(err):
		return errorInfo{http.StatusBadRequest, "bad_request", "Malformed request"}
	case errors.Is(err, twofactor.ErrAttemptsExceeded):
		return errorInfo{http.StatusTooManyRequests, "attempts_exceeded", "Too many failed attempts"}
	case errors.Is(err, twofactor.ErrResendTooSoon):
		return errorInfo{http.StatusTooManyRequests, "resend_too_soon", "A code was sent recently"}
	case errors.Is(err, twofactor.ErrCodeExpired):
		return errorInfo{http.StatusUnprocessableEntity, "code_expired", "The code has expired"}
	case errors.Is(err, twofactor.ErrInvalidCode):
		return errorInfo{http.StatusUnprocessableEntity, "invalid_code", "The code is not valid"}
	case errors.Is(err, twofactor.ErrInvalidEmail):
		return errorInfo{http.StatusUnprocessableEntity, "invalid_email", "The email address is not valid"}
	case errors.Is(err, twofactor.ErrInvalidMethod):
		return errorInfo{http.StatusBadRequest, "invalid_method", "The method is not available"}
	case errors.Is(err, twofactor.ErrChallengeExpired):
		return errorInfo{http.StatusGone, "challenge_expired", "The challenge is no longer valid"}
	case errors.Is(err, twofactor.ErrEnrollmentRequired):
		return errorInfo{http.StatusForbidden, "enrollment_required", "Two-factor enrollment is required"}
	case errors.Is(err, twofactor.ErrAlreadyEnrolled):
		return errorInfo{http.StatusConflict, "already_enrolled", "Two-factor authentication is already enabled"}
	case errors.Is(err, twofactor.ErrNotEnrolled):
		return errorInfo{http.StatusConflict, "not_enrolled", "Two-factor authentication is not enabled"}
	case errors.Is(err, twofactor.ErrInvalidState):
		return errorInfo{http.StatusConflict, "invalid_state", "The request does not fit the current step"}
	case errors.Is(err, twofactor.ErrNotFound):
		return errorInfo{http.StatusNotFound, "not_found", "Not found"}
	case errors.Is(err, twofactor.ErrDeliveryFailed):
		return errorInfo{http.StatusBadGateway, "delivery_failed", "The code could not be delivered"}
	default:
		return errorInfo{http.StatusInternalServerError, "internal_error", "An error occurred processing your request"}
	}
}

func badRequest(err error) bool {
	return errors.Is(err, binder.ErrMissingContentType) ||
		errors.Is(err, binder.ErrUnsupportedMediaType) ||
		errors.Is(err, binder.ErrFailedToParseJSON)
}

func strategyFor(err error) twofactor.Strategy {
	switch {
	case errors.Is(err, errUnauthorized):
		return twofactor.StrategyRestart
	case badRequest(err):
		return twofactor.StrategyRetry
	default:
		return twofactor.RetryStrategy(err)
	}
}

// ok renders data in the success envelope. Nothing here may be cached:
// setup secrets and recovery codes travel in these bodies.
func ok(status int, data any) handler.Response {
	return handler.JSON(data,
		handler.WithJSONStatus(status),
		handler.WithJSONHeader("Cache-Control", "no-store"),
	)
}

// renderError is the ErrorHandler for every route. Binding failures and
// domain errors both end up here.
func (h *handlers) renderError(ctx handler.Context, err error) {
	r := ctx.Request()
	info := classify(err)

	detail := &handler.ErrorDetail{
		Code:          info.code,
		Message:       info.message,
		RetryStrategy: string(strategyFor(err)),
	}
	opts := []handler.JSONOption{
		handler.WithJSONStatus(info.status),
		handler.WithJSONHeader("Cache-Control", "no-store"),
	}
	if d := twofactor.RetryAfter(err); d > 0 {
		detail.RetryAfter = int(math.Ceil(d.Seconds()))
		opts = append(opts, handler.WithJSONHeader("Retry-After", strconv.Itoa(detail.RetryAfter)))
	}

	level := slog.LevelWarn
	if info.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.log.LogAttrs(r.Context(), level, "request failed",
		logger.RequestID(requestid.FromContext(r.Context())),
		logger.Error(err),
		slog.Int("status_code", info.status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if werr := handler.JSONError(detail, opts...).Render(ctx.ResponseWriter(), r); werr != nil {
		h.log.ErrorContext(r.Context(), "failed to write error response", logger.Error(werr))
	}
}
