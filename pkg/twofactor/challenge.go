package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/ratelimiter"
	"github.com/aitoolhub/accountsec/pkg/statemachine"
)

type challengeEvent string

const (
	eventIssue   challengeEvent = "issue"
	eventPass    challengeEvent = "pass"
	eventFail    challengeEvent = "fail"
	eventExpire  challengeEvent = "expire"
	eventDiscard challengeEvent = "discard"
)

type challengeRun struct {
	m         *ChallengeManager
	challenge Challenge
	attempts  int
}

func challengeRunOf(data any) *challengeRun { return data.(*challengeRun) }

func (r *challengeRun) exhausted() bool {
	return r.attempts >= r.m.cfg.MaxChallengeAttempts
}

func discardChallenge(ctx context.Context, _, _ ChallengeState, _ challengeEvent, data any) error {
	r := challengeRunOf(data)
	_, err := r.m.challenges.DeleteChallenge(ctx, r.challenge.ID)
	return err
}

var challengeFlow = statemachine.MustDefine(
	statemachine.WithTransition(ChallengeUnchallenged, ChallengeOpen, eventIssue,
		statemachine.WithAction(func(ctx context.Context, _, _ ChallengeState, _ challengeEvent, data any) error {
			r := challengeRunOf(data)
			return r.m.challenges.CreateChallenge(ctx, r.challenge)
		}),
	),
	statemachine.WithTransition(ChallengeOpen, ChallengeVerified, eventPass,
		statemachine.WithAction(func(ctx context.Context, _, _ ChallengeState, _ challengeEvent, data any) error {
			r := challengeRunOf(data)
			// Only the caller that removes the challenge gets a session
			claimed, err := r.m.challenges.DeleteChallenge(ctx, r.challenge.ID)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrChallengeExpired
			}
			return nil
		}),
	),
	statemachine.WithTransition(ChallengeOpen, ChallengeFailed, eventFail,
		statemachine.WithGuard(func(_ context.Context, _ ChallengeState, _ challengeEvent, data any) bool {
			return challengeRunOf(data).exhausted()
		}),
		statemachine.WithAction(discardChallenge),
	),
	statemachine.WithTransition(ChallengeOpen, ChallengeOpen, eventFail),
	statemachine.WithTransition(ChallengeOpen, ChallengeFailed, eventExpire,
		statemachine.WithAction(discardChallenge),
	),
	statemachine.WithTransition(ChallengeOpen, ChallengeFailed, eventDiscard,
		statemachine.WithAction(discardChallenge),
	),
)

// ChallengeManager runs the second-factor step of every login.
type ChallengeManager struct {
	verifier
	challenges ChallengeStore
	sessions   SessionIssuer
	logins     *ratelimiter.Bucket
}

// NewChallengeManager wires the manager. Callers must have completed the
// password step for the user before calling BeginChallenge.
func NewChallengeManager(store Store, challenges ChallengeStore, keys Keyring, mailer Mailer, sessions SessionIssuer, opts ...Option) (*ChallengeManager, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	logins, err := failureBudget(o.limiter, o.cfg.LoginFailureBudget, o.cfg.LoginFailureWindow)
	if err != nil {
		return nil, err
	}
	return &ChallengeManager{
		verifier: verifier{
			store:  store,
			keys:   keys,
			mailer: mailer,
			cfg:    o.cfg,
			clock:  o.clock,
			log:    o.logger.With(logger.Component("challenge")),
		},
		challenges: challenges,
		sessions:   sessions,
		logins:     logins,
	}, nil
}

// BeginChallenge issues a challenge listing the methods the user may verify with.
func (m *ChallengeManager) BeginChallenge(ctx context.Context, userID string) (ChallengeView, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return ChallengeView{}, err
	}
	if !user.TwoFactorEnabled {
		return ChallengeView{}, ErrEnrollmentRequired
	}
	if err := m.checkBackoff(ctx, userID); err != nil {
		return ChallengeView{}, err
	}

	methods, err := m.eligibleMethods(ctx, userID)
	if err != nil {
		return ChallengeView{}, err
	}

	now := m.clock.Now()
	run := &challengeRun{m: m, challenge: Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Methods:   methods,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.ChallengeTTL),
	}}
	if err := fire(ctx, challengeFlow.Start(ChallengeUnchallenged), eventIssue, run); err != nil {
		return ChallengeView{}, err
	}

	m.log.InfoContext(ctx, "challenge issued",
		logger.UserID(userID),
		logger.ChallengeID(run.challenge.ID),
	)
	return ChallengeView{
		ID:        run.challenge.ID,
		UserID:    userID,
		Methods:   methods,
		ExpiresAt: run.challenge.ExpiresAt,
	}, nil
}

// SendChallengeEmail delivers a login code for an open challenge.
func (m *ChallengeManager) SendChallengeEmail(ctx context.Context, challengeID, requestID string) (EmailDispatch, error) {
	c, err := m.open(ctx, challengeID)
	if err != nil {
		return EmailDispatch{}, err
	}
	if !c.Allows(MethodEmail) {
		return EmailDispatch{}, ErrInvalidMethod
	}
	user, err := m.store.GetUser(ctx, c.UserID)
	if err != nil {
		return EmailDispatch{}, err
	}
	return m.sendEmailCode(ctx, user, PurposeLogin, requestID)
}

// SubmitChallengeCode verifies code with method. A failed attempt leaves
// the challenge open until MaxChallengeAttempts is reached.
func (m *ChallengeManager) SubmitChallengeCode(ctx context.Context, challengeID string, method Method, code string) (VerifiedSession, error) {
	c, err := m.open(ctx, challengeID)
	if err != nil {
		return VerifiedSession{}, err
	}
	if !c.Allows(method) {
		return VerifiedSession{}, ErrInvalidMethod
	}
	if err := m.checkBackoff(ctx, c.UserID); err != nil {
		return VerifiedSession{}, err
	}

	now := m.clock.Now()
	remaining := -1
	var (
		undo undoFunc
		verr error
	)
	switch method {
	case MethodTOTP:
		undo, verr = m.checkTotpCode(ctx, c.UserID, code, now)
	case MethodEmail:
		undo, verr = m.checkEmailCode(ctx, c.UserID, PurposeLogin, code, now)
	case MethodRecovery:
		remaining, undo, verr = m.checkRecoveryCode(ctx, c.UserID, code, now)
	default:
		return VerifiedSession{}, ErrInvalidMethod
	}

	run := &challengeRun{m: m, challenge: c}
	sm := challengeFlow.Start(ChallengeOpen)
	if verr != nil {
		if !codeRejected(verr) {
			return VerifiedSession{}, verr
		}
		return VerifiedSession{}, m.recordFailure(ctx, sm, run, method, verr)
	}

	if err := fire(ctx, sm, eventPass, run); err != nil {
		// Another request claimed the challenge first; the code stays usable
		if errors.Is(err, ErrChallengeExpired) {
			m.restore(ctx, c, method, undo)
		}
		return VerifiedSession{}, err
	}

	session, err := m.sessions.IssueSession(ctx, c.UserID, method, now)
	if err != nil {
		return VerifiedSession{}, err
	}
	if err := m.logins.Reset(ctx, loginKey(c.UserID)); err != nil {
		m.log.WarnContext(ctx, "failed to reset login failure budget", logger.UserID(c.UserID), logger.Error(err))
	}

	out := VerifiedSession{
		Token:     session.Token,
		UserID:    c.UserID,
		Method:    method,
		ExpiresAt: session.ExpiresAt,
	}
	if method == MethodRecovery {
		out.RecoveryCodesRemaining = &remaining
		out.RegenerateRecoveryCodesSuggested = true
	}

	m.log.InfoContext(ctx, "challenge verified",
		logger.UserID(c.UserID),
		logger.ChallengeID(c.ID),
		logger.Method(method),
	)
	return out, nil
}

func (m *ChallengeManager) restore(ctx context.Context, c Challenge, method Method, undo undoFunc) {
	if undo == nil {
		return
	}
	if err := undo(context.WithoutCancel(ctx)); err != nil {
		m.log.ErrorContext(ctx, "failed to restore code after lost challenge claim",
			logger.UserID(c.UserID),
			logger.ChallengeID(c.ID),
			logger.Method(method),
			logger.Error(err),
		)
		return
	}
	m.log.InfoContext(ctx, "code restored after lost challenge claim",
		logger.UserID(c.UserID),
		logger.ChallengeID(c.ID),
		logger.Method(method),
	)
}

func (m *ChallengeManager) recordFailure(ctx context.Context, sm *statemachine.Machine[ChallengeState, challengeEvent], run *challengeRun, method Method, verr error) error {
	attempts, err := m.challenges.RecordChallengeFailure(ctx, run.challenge.ID, method)
	if errors.Is(err, ErrNotFound) {
		return ErrChallengeExpired
	}
	if err != nil {
		return errors.Join(verr, err)
	}
	run.attempts = attempts

	budget, err := m.logins.Allow(ctx, loginKey(run.challenge.UserID))
	if err != nil {
		return errors.Join(verr, err)
	}

	m.log.WarnContext(ctx, "challenge code rejected",
		logger.UserID(run.challenge.UserID),
		logger.ChallengeID(run.challenge.ID),
		logger.Method(method),
		logger.Attempts(attempts),
	)

	if budget.Exhausted() {
		if err := fire(ctx, sm, eventDiscard, run); err != nil {
			return err
		}
		return retryAfter(ErrAttemptsExceeded, budget.ResetAt.Sub(m.clock.Now()))
	}

	if err := fire(ctx, sm, eventFail, run); err != nil {
		return err
	}
	if sm.Current() == ChallengeFailed {
		m.log.WarnContext(ctx, "challenge failed", logger.ChallengeID(run.challenge.ID), logger.Attempts(attempts))
		return &RetryError{Err: ErrAttemptsExceeded, Strategy: StrategyRestart}
	}
	return verr
}

// open loads a live challenge. Unknown and expired challenges both force a
// restart from the password step.
func (m *ChallengeManager) open(ctx context.Context, id string) (Challenge, error) {
	if id == "" {
		return Challenge{}, ErrChallengeExpired
	}
	now := m.clock.Now()
	c, err := m.challenges.GetChallenge(ctx, id, now)
	if errors.Is(err, ErrNotFound) {
		return Challenge{}, ErrChallengeExpired
	}
	if err != nil {
		return Challenge{}, err
	}
	if c.Expired(now) {
		if err := fire(ctx, challengeFlow.Start(ChallengeOpen), eventExpire, &challengeRun{m: m, challenge: c}); err != nil {
			return Challenge{}, err
		}
		return Challenge{}, ErrChallengeExpired
	}
	return c, nil
}

func (m *ChallengeManager) eligibleMethods(ctx context.Context, userID string) ([]Method, error) {
	methods := make([]Method, 0, 3)
	cred, err := m.store.GetTotpCredential(ctx, userID)
	switch {
	case err == nil && cred.Enabled():
		methods = append(methods, MethodTOTP)
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return append(methods, MethodEmail, MethodRecovery), nil
}

func (m *ChallengeManager) checkBackoff(ctx context.Context, userID string) error {
	res, err := m.logins.Status(ctx, loginKey(userID))
	if err != nil {
		return err
	}
	if res.Exhausted() {
		return retryAfter(ErrAttemptsExceeded, res.ResetAt.Sub(m.clock.Now()))
	}
	return nil
}

func loginKey(userID string) string { return "login:" + userID }

// Sweep removes expired pending state. Challenge stores with native TTLs
// need no sweeping.
func Sweep(ctx context.Context, store Store, now time.Time, cfg Config) (int64, error) {
	return store.DeleteExpired(ctx, now, cfg.PendingSecretTTL)
}
