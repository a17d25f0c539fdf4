package twofactor

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aitoolhub/accountsec/handler"
	"github.com/aitoolhub/accountsec/pkg/ratelimiter"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

// EnrollmentService is the enrollment surface the router needs.
// *twofactor.EnrollmentManager satisfies it.
type EnrollmentService interface {
	Register(ctx context.Context, userID, address string) (twofactor.EnrollmentView, error)
	BeginEnrollment(ctx context.Context, userID string) (twofactor.EnrollmentView, error)
	Status(ctx context.Context, userID string) (twofactor.EnrollmentView, error)
	SelectMethod(ctx context.Context, userID string, method twofactor.Method, requestID string) (twofactor.Setup, error)
	ResendEnrollmentCode(ctx context.Context, userID, requestID string) (twofactor.Setup, error)
	SubmitEnrollmentCode(ctx context.Context, userID, code string) (twofactor.EnrollmentResult, error)
	RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error)
}

// ChallengeService is the login surface the router needs.
// *twofactor.ChallengeManager satisfies it.
type ChallengeService interface {
	BeginChallenge(ctx context.Context, userID string) (twofactor.ChallengeView, error)
	SendChallengeEmail(ctx context.Context, challengeID, requestID string) (twofactor.EmailDispatch, error)
	SubmitChallengeCode(ctx context.Context, challengeID string, method twofactor.Method, code string) (twofactor.VerifiedSession, error)
}

// UserResolver returns the identity authenticated by the outer layer.
// For enrollment that is a full session, for BeginChallenge the password step.
type UserResolver func(r *http.Request) (string, error)

// RouterOptions configures the two-factor router.
// Enrollment and Challenges are optional and mounted only if provided.
type RouterOptions struct {
	Enrollment EnrollmentService
	Challenges ChallengeService

	// ResolveUser is required when either service is mounted.
	ResolveUser UserResolver

	// VerifyLimiter, when set, throttles code submissions per challenge id
	// before they reach the challenge manager.
	VerifyLimiter *ratelimiter.Bucket

	Logger *slog.Logger
}

// Router creates the two-factor router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//	r.Mount("/2fa", twofactor.Router(twofactor.RouterOptions{
//	    Enrollment:  enrollMgr,
//	    Challenges:  challengeMgr,
//	    ResolveUser: sessionUser,
//	}))
func Router(opts RouterOptions) chi.Router {
	h := &handlers{
		enroll:     opts.Enrollment,
		challenges: opts.Challenges,
		resolve:    opts.ResolveUser,
		log:        opts.Logger,
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if h.resolve == nil {
		h.resolve = func(*http.Request) (string, error) { return "", errUnauthorized }
	}

	r := chi.NewRouter()

	if h.enroll != nil {
		r.Post("/users", withJSON[registerRequest](h, h.register))
		r.Route("/enrollment", func(er chi.Router) {
			er.Get("/", h.bodyless(h.enrollmentStatus))
			er.Post("/", h.bodyless(h.beginEnrollment))
			er.Post("/method", withJSON[selectMethodRequest](h, h.selectMethod))
			er.Post("/resend", h.bodyless(h.resendEnrollmentCode))
			er.Post("/verify", withJSON[submitCodeRequest](h, h.submitEnrollmentCode))
		})
		r.Post("/recovery-codes/regenerate", h.bodyless(h.regenerateRecoveryCodes))
	}

	if h.challenges != nil {
		r.Route("/challenges", func(cr chi.Router) {
			cr.Post("/", h.bodyless(h.beginChallenge))
			cr.Route("/{challengeID}", func(one chi.Router) {
				one.Post("/email", h.bodyless(h.sendChallengeEmail))
				verify := http.Handler(withJSON[submitChallengeRequest](h, h.submitChallengeCode))
				if opts.VerifyLimiter != nil {
					verify = ratelimiter.Middleware(opts.VerifyLimiter, challengeKey,
						ratelimiter.WithErrorResponder(h.limited),
					)(verify)
				}
				one.Method(http.MethodPost, "/verify", verify)
			})
		})
	}

	return r
}

func challengeKey(r *http.Request) string {
	if id := chi.URLParam(r, "challengeID"); id != "" {
		return "verify:" + id
	}
	return ""
}

func (h *handlers) limited(w http.ResponseWriter, r *http.Request, result *ratelimiter.Result, err error) {
	ctx := handler.NewContext(w, r)
	if err != nil {
		h.renderError(ctx, err)
		return
	}
	h.renderError(ctx, &twofactor.RetryError{
		Err:        twofactor.ErrAttemptsExceeded,
		RetryAfter: result.RetryAfter(),
		Strategy:   twofactor.StrategyWait,
	})
}
