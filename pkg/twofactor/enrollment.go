package twofactor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/ratelimiter"
	"github.com/aitoolhub/accountsec/pkg/statemachine"
	"github.com/aitoolhub/accountsec/pkg/totp"
)

type enrollmentEvent string

const (
	eventChooseTotp  enrollmentEvent = "choose_totp"
	eventChooseEmail enrollmentEvent = "choose_email"
	eventSetupReady  enrollmentEvent = "setup_ready"
	eventResend      enrollmentEvent = "resend"
	eventVerified    enrollmentEvent = "verified"
	eventLockout     enrollmentEvent = "lockout"
)

// enrollmentRun is the per-call data threaded through transitions.
type enrollmentRun struct {
	m         *EnrollmentManager
	user      User
	method    Method
	requestID string
	now       time.Time
	setup     Setup
	codes     []string
}

func runOf(data any) *enrollmentRun { return data.(*enrollmentRun) }

var enrollmentFlow = statemachine.MustDefine(
	statemachine.WithTransitions(
		[]EnrollmentState{StateAwaitingMethodChoice, StateAwaitingVerification},
		StateSettingUpTotp, eventChooseTotp,
		statemachine.WithAction(func(ctx context.Context, _, _ EnrollmentState, _ enrollmentEvent, data any) error {
			r := runOf(data)
			return r.m.setupTotp(ctx, r)
		}),
	),
	statemachine.WithTransitions(
		[]EnrollmentState{StateAwaitingMethodChoice, StateAwaitingVerification},
		StateSendingEmailCode, eventChooseEmail,
		statemachine.WithAction(func(ctx context.Context, _, _ EnrollmentState, _ enrollmentEvent, data any) error {
			r := runOf(data)
			return r.m.setupEmail(ctx, r)
		}),
	),
	statemachine.WithTransition(StateAwaitingVerification, StateSendingEmailCode, eventResend,
		statemachine.WithGuard(func(_ context.Context, _ EnrollmentState, _ enrollmentEvent, data any) bool {
			return runOf(data).method == MethodEmail
		}),
		statemachine.WithAction(func(ctx context.Context, _, _ EnrollmentState, _ enrollmentEvent, data any) error {
			r := runOf(data)
			return r.m.setupEmail(ctx, r)
		}),
	),
	statemachine.WithTransitions(
		[]EnrollmentState{StateSettingUpTotp, StateSendingEmailCode},
		StateAwaitingVerification, eventSetupReady,
	),
	statemachine.WithTransition(StateAwaitingVerification, StateEnrolled, eventVerified,
		statemachine.WithAction(func(ctx context.Context, _, _ EnrollmentState, _ enrollmentEvent, data any) error {
			r := runOf(data)
			return r.m.complete(ctx, r)
		}),
	),
	statemachine.WithTransition(StateAwaitingVerification, StateAwaitingMethodChoice, eventLockout),
)

// EnrollmentManager drives the one-time 2FA setup that follows registration.
type EnrollmentManager struct {
	verifier
	failures *ratelimiter.Bucket
	qrSize   int
}

// NewEnrollmentManager wires the manager to its store, keyring and mailer.
func NewEnrollmentManager(store Store, keys Keyring, mailer Mailer, opts ...Option) (*EnrollmentManager, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	failures, err := failureBudget(o.limiter, o.cfg.EnrollmentFailureThreshold, o.cfg.EnrollmentFailureWindow)
	if err != nil {
		return nil, err
	}
	return &EnrollmentManager{
		verifier: verifier{
			store:  store,
			keys:   keys,
			mailer: mailer,
			cfg:    o.cfg,
			clock:  o.clock,
			log:    o.logger.With(logger.Component("enrollment")),
		},
		failures: failures,
		qrSize:   o.qrSize,
	}, nil
}

// Register records the identity anchor for a newly signed-up user and opens
// enrollment. Calling it again before enrollment completes updates the
// address; once 2FA is enabled the address can no longer change here.
func (m *EnrollmentManager) Register(ctx context.Context, userID, address string) (EnrollmentView, error) {
	address = strings.TrimSpace(address)
	if userID == "" {
		return EnrollmentView{}, ErrNotFound
	}
	if !email.ValidAddress(address) {
		return EnrollmentView{}, ErrInvalidEmail
	}

	existing, err := m.store.GetUser(ctx, userID)
	switch {
	case err == nil && existing.TwoFactorEnabled:
		return EnrollmentView{}, ErrAlreadyEnrolled
	case err != nil && !errors.Is(err, ErrNotFound):
		return EnrollmentView{}, err
	}

	if err := m.store.PutUser(ctx, User{ID: userID, Email: address, CreatedAt: m.clock.Now()}); err != nil {
		return EnrollmentView{}, err
	}
	m.log.InfoContext(ctx, "user registered", logger.UserID(userID), logger.Email(address))
	return m.BeginEnrollment(ctx, userID)
}

// BeginEnrollment opens or resumes enrollment for a freshly registered user.
func (m *EnrollmentManager) BeginEnrollment(ctx context.Context, userID string) (EnrollmentView, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return EnrollmentView{}, err
	}
	if user.TwoFactorEnabled {
		return EnrollmentView{}, ErrAlreadyEnrolled
	}

	e, err := m.store.GetEnrollment(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		e = Enrollment{UserID: userID, State: StateAwaitingMethodChoice, UpdatedAt: m.clock.Now()}
		if err := m.store.SaveEnrollment(ctx, e); err != nil {
			return EnrollmentView{}, err
		}
		m.log.InfoContext(ctx, "enrollment started", logger.UserID(userID))
	} else if err != nil {
		return EnrollmentView{}, err
	}
	return enrollmentView(e), nil
}

// Status reconstructs the enrollment state from stored facts.
func (m *EnrollmentManager) Status(ctx context.Context, userID string) (EnrollmentView, error) {
	user, e, err := m.load(ctx, userID)
	if err != nil {
		return EnrollmentView{}, err
	}
	if user.TwoFactorEnabled {
		return EnrollmentView{UserID: userID, State: StateEnrolled, Method: user.TwoFactorMethod}, nil
	}
	return enrollmentView(e), nil
}

// SelectMethod performs the method-specific setup and moves enrollment to
// awaiting verification. Choosing again while awaiting verification
// restarts setup with the new method.
func (m *EnrollmentManager) SelectMethod(ctx context.Context, userID string, method Method, requestID string) (Setup, error) {
	if !enrollable(method) {
		return Setup{}, ErrInvalidMethod
	}
	user, e, err := m.load(ctx, userID)
	if err != nil {
		return Setup{}, err
	}
	if user.TwoFactorEnabled {
		return Setup{}, ErrAlreadyEnrolled
	}
	if err := m.checkLockout(ctx, userID); err != nil {
		return Setup{}, err
	}

	event := eventChooseTotp
	if method == MethodEmail {
		event = eventChooseEmail
	}

	run := &enrollmentRun{m: m, user: user, method: method, requestID: requestID, now: m.clock.Now()}
	sm := enrollmentFlow.Start(e.State)
	if err := fire(ctx, sm, event, run); err != nil {
		return Setup{}, err
	}
	if err := fire(ctx, sm, eventSetupReady, run); err != nil {
		return Setup{}, err
	}
	if err := m.save(ctx, userID, sm.Current(), method, run.now); err != nil {
		return Setup{}, err
	}

	m.log.InfoContext(ctx, "enrollment method selected",
		logger.UserID(userID),
		logger.Method(method),
		logger.State(e.State, sm.Current()),
	)
	return run.setup, nil
}

// ResendEnrollmentCode sends a fresh setup code to the user's address.
func (m *EnrollmentManager) ResendEnrollmentCode(ctx context.Context, userID, requestID string) (Setup, error) {
	user, e, err := m.load(ctx, userID)
	if err != nil {
		return Setup{}, err
	}
	if user.TwoFactorEnabled {
		return Setup{}, ErrAlreadyEnrolled
	}

	run := &enrollmentRun{m: m, user: user, method: e.Method, requestID: requestID, now: m.clock.Now()}
	sm := enrollmentFlow.Start(e.State)
	if err := fire(ctx, sm, eventResend, run); err != nil {
		return Setup{}, err
	}
	if err := fire(ctx, sm, eventSetupReady, run); err != nil {
		return Setup{}, err
	}
	return run.setup, nil
}

// SubmitEnrollmentCode verifies the first code for the chosen method. On
// success the method is activated and the plaintext recovery codes are
// returned. Repeated failures send the user back to method selection.
func (m *EnrollmentManager) SubmitEnrollmentCode(ctx context.Context, userID, code string) (EnrollmentResult, error) {
	user, e, err := m.load(ctx, userID)
	if err != nil {
		return EnrollmentResult{}, err
	}
	if user.TwoFactorEnabled {
		return EnrollmentResult{}, ErrAlreadyEnrolled
	}

	run := &enrollmentRun{m: m, user: user, method: e.Method, now: m.clock.Now()}
	sm := enrollmentFlow.Start(e.State)
	if !sm.CanFire(ctx, eventVerified, run) {
		return EnrollmentResult{}, ErrInvalidState
	}

	var verr error
	switch e.Method {
	case MethodTOTP:
		_, verr = m.checkTotpCode(ctx, userID, code, run.now)
	case MethodEmail:
		_, verr = m.checkEmailCode(ctx, userID, PurposeSetup, code, run.now)
	default:
		return EnrollmentResult{}, ErrInvalidState
	}
	if verr != nil {
		if !codeRejected(verr) {
			return EnrollmentResult{}, verr
		}
		return EnrollmentResult{}, m.recordFailure(ctx, sm, run, verr)
	}

	if err := fire(ctx, sm, eventVerified, run); err != nil {
		return EnrollmentResult{}, err
	}
	if err := m.failures.Reset(ctx, enrollmentKey(userID)); err != nil {
		m.log.WarnContext(ctx, "failed to reset enrollment failure budget", logger.UserID(userID), logger.Error(err))
	}

	m.log.InfoContext(ctx, "enrollment completed",
		logger.UserID(userID),
		logger.Method(e.Method),
	)
	return EnrollmentResult{Method: e.Method, RecoveryCodes: run.codes}, nil
}

// RegenerateRecoveryCodes replaces the whole recovery set of an enrolled user.
func (m *EnrollmentManager) RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrNotEnrolled
	}
	codes, err := m.issueRecoveryCodes(ctx, userID, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.log.InfoContext(ctx, "recovery codes regenerated", logger.UserID(userID))
	return codes, nil
}

func (m *EnrollmentManager) setupTotp(ctx context.Context, r *enrollmentRun) error {
	secret, err := totp.GenerateSecretKey()
	if err != nil {
		return errors.Join(ErrSecretGenerationFailed, err)
	}
	uri, err := totp.GetTOTPURI(totp.TOTPParams{
		Secret:      secret,
		AccountName: r.user.Email,
		Issuer:      m.cfg.Issuer,
	})
	if err != nil {
		return err
	}
	qr, err := totp.QRCode(uri, m.qrSize)
	if err != nil {
		return err
	}

	ciphertext, err := m.keys.Encrypt(secret, secretAD(r.user.ID))
	if err != nil {
		return fmt.Errorf("encrypt totp secret: %w", err)
	}
	if err := m.store.SaveTotpSecret(ctx, r.user.ID, ciphertext, r.now); err != nil {
		return err
	}

	r.setup = Setup{
		Method:          MethodTOTP,
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
	}
	return nil
}

func (m *EnrollmentManager) setupEmail(ctx context.Context, r *enrollmentRun) error {
	d, err := m.sendEmailCode(ctx, r.user, PurposeSetup, r.requestID)
	if err != nil {
		return err
	}
	r.setup = Setup{
		Method:            MethodEmail,
		EmailSentTo:       d.SentTo,
		CodeExpiresAt:     d.ExpiresAt,
		ResendAvailableAt: d.ResendAvailableAt,
	}
	return nil
}

// complete persists the verified method. Recovery codes are stored before
// the user is marked enabled so an enabled user always has a set.
func (m *EnrollmentManager) complete(ctx context.Context, r *enrollmentRun) error {
	codes, err := m.issueRecoveryCodes(ctx, r.user.ID, r.now)
	if err != nil {
		return err
	}
	if err := m.store.ActivateMethod(ctx, r.user.ID, r.method, r.now); err != nil {
		return err
	}
	if err := m.save(ctx, r.user.ID, StateEnrolled, r.method, r.now); err != nil {
		return err
	}
	r.codes = codes
	return nil
}

func (m *EnrollmentManager) recordFailure(ctx context.Context, sm *statemachine.Machine[EnrollmentState, enrollmentEvent], r *enrollmentRun, verr error) error {
	res, err := m.failures.Allow(ctx, enrollmentKey(r.user.ID))
	if err != nil {
		return errors.Join(verr, err)
	}
	m.log.WarnContext(ctx, "enrollment code rejected",
		logger.UserID(r.user.ID),
		logger.Method(r.method),
		logger.Attempts(res.Limit-max(0, res.Remaining)),
	)
	if !res.Exhausted() {
		return verr
	}

	if err := fire(ctx, sm, eventLockout, r); err != nil {
		return err
	}
	if err := m.save(ctx, r.user.ID, sm.Current(), "", r.now); err != nil {
		return err
	}
	m.log.WarnContext(ctx, "enrollment locked out", logger.UserID(r.user.ID))
	return &RetryError{
		Err:        ErrAttemptsExceeded,
		RetryAfter: max(0, res.ResetAt.Sub(r.now)),
		Strategy:   StrategyWait,
	}
}

func (m *EnrollmentManager) checkLockout(ctx context.Context, userID string) error {
	res, err := m.failures.Status(ctx, enrollmentKey(userID))
	if err != nil {
		return err
	}
	if res.Exhausted() {
		return retryAfter(ErrAttemptsExceeded, res.ResetAt.Sub(m.clock.Now()))
	}
	return nil
}

// load returns the user and the stored enrollment, defaulting to
// AwaitingMethodChoice when none was saved yet.
func (m *EnrollmentManager) load(ctx context.Context, userID string) (User, Enrollment, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, Enrollment{}, err
	}
	e, err := m.store.GetEnrollment(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return user, Enrollment{UserID: userID, State: StateAwaitingMethodChoice}, nil
	}
	if err != nil {
		return User{}, Enrollment{}, err
	}
	return user, e, nil
}

func (m *EnrollmentManager) save(ctx context.Context, userID string, state EnrollmentState, method Method, now time.Time) error {
	return m.store.SaveEnrollment(ctx, Enrollment{
		UserID:    userID,
		State:     state,
		Method:    method,
		UpdatedAt: now,
	})
}

func enrollmentView(e Enrollment) EnrollmentView {
	v := EnrollmentView{UserID: e.UserID, State: e.State, Method: e.Method}
	if e.State != StateEnrolled {
		v.AvailableMethods = slices.Clone(EnrollableMethods)
	}
	return v
}

func enrollmentKey(userID string) string { return "enroll:" + userID }

// fire translates state machine errors into the package taxonomy.
// Action errors are returned unchanged.
func fire[S, E comparable](ctx context.Context, sm *statemachine.Machine[S, E], event E, data any) error {
	err := sm.Fire(ctx, event, data)
	switch {
	case err == nil:
		return nil
	case statemachine.IsNoTransitionAvailableError(err), statemachine.IsTransitionRejectedError(err):
		return ErrInvalidState
	default:
		if inner := errors.Unwrap(err); inner != nil {
			return inner
		}
		return err
	}
}
