package twofactor

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aitoolhub/accountsec/handler"
	"github.com/aitoolhub/accountsec/pkg/binder"
	"github.com/aitoolhub/accountsec/pkg/requestid"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

type handlers struct {
	enroll     EnrollmentService
	challenges ChallengeService
	resolve    UserResolver
	log        *slog.Logger
}

type registerRequest struct {
	Email string `json:"email"`
}

type selectMethodRequest struct {
	Method string `json:"method"`
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

type submitChallengeRequest struct {
	Method string `json:"method"`
	Code   string `json:"code"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// bodyless wraps a handler that takes no request body.
func (h *handlers) bodyless(fn handler.HandlerFunc[handler.Context, struct{}]) http.HandlerFunc {
	return handler.Wrap(fn, handler.WithErrorHandler[handler.Context, struct{}](h.renderError))
}

// withJSON wraps a handler whose request is bound from a JSON body.
func withJSON[R any](h *handlers, fn handler.HandlerFunc[handler.Context, R]) http.HandlerFunc {
	return handler.Wrap(fn,
		handler.WithBinder[handler.Context, R](binder.JSON(binder.WithMaxSize(maxBodySize))),
		handler.WithErrorHandler[handler.Context, R](h.renderError),
	)
}

func (h *handlers) user(ctx handler.Context) (string, error) {
	userID, err := h.resolve(ctx.Request())
	if err != nil || userID == "" {
		return "", errors.Join(errUnauthorized, err)
	}
	return userID, nil
}

func (h *handlers) register(ctx handler.Context, req registerRequest) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	view, err := h.enroll.Register(ctx, userID, req.Email)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusCreated, view)
}

func (h *handlers) beginEnrollment(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	view, err := h.enroll.BeginEnrollment(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, view)
}

func (h *handlers) enrollmentStatus(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	view, err := h.enroll.Status(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, view)
}

func (h *handlers) selectMethod(ctx handler.Context, req selectMethodRequest) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	method, err := twofactor.ParseMethod(req.Method)
	if err != nil {
		return handler.Error(err)
	}
	setup, err := h.enroll.SelectMethod(ctx, userID, method, requestid.FromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, setup)
}

func (h *handlers) resendEnrollmentCode(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	setup, err := h.enroll.ResendEnrollmentCode(ctx, userID, requestid.FromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, setup)
}

func (h *handlers) submitEnrollmentCode(ctx handler.Context, req submitCodeRequest) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	result, err := h.enroll.SubmitEnrollmentCode(ctx, userID, req.Code)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, result)
}

func (h *handlers) regenerateRecoveryCodes(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	codes, err := h.enroll.RegenerateRecoveryCodes(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *handlers) beginChallenge(ctx handler.Context, _ struct{}) handler.Response {
	userID, err := h.user(ctx)
	if err != nil {
		return handler.Error(err)
	}
	view, err := h.challenges.BeginChallenge(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusCreated, view)
}

// The challenge id is the bearer for the remaining login steps.
func (h *handlers) sendChallengeEmail(ctx handler.Context, _ struct{}) handler.Response {
	id := chi.URLParam(ctx.Request(), "challengeID")
	dispatch, err := h.challenges.SendChallengeEmail(ctx, id, requestid.FromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, dispatch)
}

func (h *handlers) submitChallengeCode(ctx handler.Context, req submitChallengeRequest) handler.Response {
	id := chi.URLParam(ctx.Request(), "challengeID")
	method, err := twofactor.ParseMethod(req.Method)
	if err != nil {
		return handler.Error(err)
	}
	session, err := h.challenges.SubmitChallengeCode(ctx, id, method, req.Code)
	if err != nil {
		return handler.Error(err)
	}
	return ok(http.StatusOK, session)
}
