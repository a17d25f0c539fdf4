package twofactor_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/secrets"
	"github.com/aitoolhub/accountsec/pkg/totp"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

// baseTime sits 16 seconds into a TOTP step so that +25s lands in the
// next step and +45s two steps ahead.
var baseTime = time.Unix(56_000_000*30+16, 0).UTC()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingMailer keeps every message and fails while err is set.
type recordingMailer struct {
	mu   sync.Mutex
	sent []email.CodeMessage
	err  error
}

func (m *recordingMailer) SendCode(_ context.Context, msg email.CodeMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no code was sent")
	return m.sent[len(m.sent)-1].Code
}

type fixture struct {
	clock      *fakeClock
	store      *twofactor.MemoryStore
	challenges *twofactor.MemoryChallengeStore
	keys       *secrets.Keyring
	mailer     *recordingMailer
	sessions   *twofactor.TokenIssuer
	enroll     *twofactor.EnrollmentManager
	challenge  *twofactor.ChallengeManager
}

func newFixture(t *testing.T, opts ...twofactor.Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:      newFakeClock(),
		store:      twofactor.NewMemoryStore(),
		challenges: twofactor.NewMemoryChallengeStore(),
		keys:       secrets.MustNewKeyring(bytes.Repeat([]byte{0x42}, secrets.KeySize)),
		mailer:     &recordingMailer{},
	}

	var err error
	f.sessions, err = twofactor.NewTokenIssuer([]byte("session-signing-key"), time.Hour)
	require.NoError(t, err)

	opts = append([]twofactor.Option{twofactor.WithClock(f.clock)}, opts...)
	f.enroll, err = twofactor.NewEnrollmentManager(f.store, f.keys, f.mailer, opts...)
	require.NoError(t, err)
	f.challenge, err = twofactor.NewChallengeManager(f.store, f.challenges, f.keys, f.mailer, f.sessions, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.PutUser(context.Background(), twofactor.User{
		ID:        id,
		Email:     id + "@example.com",
		CreatedAt: f.clock.Now(),
	}))
}

// enrollEmail registers id and completes email enrollment, returning the recovery codes.
func (f *fixture) enrollEmail(t *testing.T, id string) []string {
	t.Helper()
	ctx := context.Background()
	f.addUser(t, id)

	_, err := f.enroll.BeginEnrollment(ctx, id)
	require.NoError(t, err)
	_, err = f.enroll.SelectMethod(ctx, id, twofactor.MethodEmail, "")
	require.NoError(t, err)
	res, err := f.enroll.SubmitEnrollmentCode(ctx, id, f.mailer.lastCode(t))
	require.NoError(t, err)
	return res.RecoveryCodes
}

// enrollTotp completes TOTP enrollment and returns the shared secret.
func (f *fixture) enrollTotp(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()
	f.addUser(t, id)

	setup, err := f.enroll.SelectMethod(ctx, id, twofactor.MethodTOTP, "")
	require.NoError(t, err)
	_, err = f.enroll.SubmitEnrollmentCode(ctx, id, totpCode(t, setup.Secret, f.clock.Now()))
	require.NoError(t, err)
	return setup.Secret
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.ComputeCode(secret, at)
	require.NoError(t, err)
	return code
}

// providerSender counts provider calls made by a real email.CodeMailer.
type providerSender struct {
	mu    sync.Mutex
	calls int
}

func (s *providerSender) SendEmail(context.Context, email.SendEmailParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *providerSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// codeTap records the code handed to the wrapped mailer.
type codeTap struct {
	recordingMailer
	next twofactor.Mailer
}

func (m *codeTap) SendCode(ctx context.Context, msg email.CodeMessage) error {
	if err := m.next.SendCode(ctx, msg); err != nil {
		return err
	}
	return m.recordingMailer.SendCode(ctx, msg)
}
