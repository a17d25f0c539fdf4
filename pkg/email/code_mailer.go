package email

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aitoolhub/accountsec/pkg/cache"
	"github.com/aitoolhub/accountsec/pkg/email/templates"
	"github.com/aitoolhub/accountsec/pkg/logger"
)

const (
	DefaultSendTimeout = 10 * time.Second
	defaultDedupWindow = 15 * time.Minute
	defaultDedupSize   = 10_000
)

// CodeMessage is a one-time code delivery request.
type CodeMessage struct {
	RequestID string    // Deduplication key; repeated sends of the same code under the same id are dropped
	To        string    // Recipient address
	Subject   string    // Optional; derived from Purpose when empty
	Code      string    // Plaintext code, rendered into the body and never logged
	Purpose   string    // "setup" or "login", used as the provider tag
	ExpiresAt time.Time // When the code stops working
}

// CodeMailer renders and sends one-time codes with a bounded timeout.
// It is safe for concurrent use.
type CodeMailer struct {
	sender      EmailSender
	productName string
	timeout     time.Duration
	window      time.Duration
	sent        *cache.Cache[string, struct{}]
	now         func() time.Time
	logger      *slog.Logger
}

// CodeMailerOption configures a CodeMailer.
type CodeMailerOption func(*CodeMailer)

// WithProductName sets the product name shown in the message.
func WithProductName(name string) CodeMailerOption {
	return func(m *CodeMailer) {
		if name != "" {
			m.productName = name
		}
	}
}

// WithSendTimeout bounds each provider call.
func WithSendTimeout(d time.Duration) CodeMailerOption {
	return func(m *CodeMailer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithDedupWindow sets how long a delivered (RequestID, Code) pair is remembered.
func WithDedupWindow(d time.Duration) CodeMailerOption {
	return func(m *CodeMailer) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithMailerClock replaces time.Now. Intended for tests.
func WithMailerClock(now func() time.Time) CodeMailerOption {
	return func(m *CodeMailer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMailerLogger sets the logger.
func WithMailerLogger(l *slog.Logger) CodeMailerOption {
	return func(m *CodeMailer) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewCodeMailer wraps sender.
func NewCodeMailer(sender EmailSender, opts ...CodeMailerOption) *CodeMailer {
	m := &CodeMailer{
		sender:      sender,
		productName: "AccountSec",
		timeout:     DefaultSendTimeout,
		window:      defaultDedupWindow,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sent = cache.New(defaultDedupSize, cache.WithClock[string, struct{}](m.now))
	return m
}

// SendCode delivers msg. The same code sent again under a RequestID that was
// already delivered inside the dedup window returns nil without contacting the
// provider; a different code under a reused RequestID is always sent, since the
// caller has already replaced the stored code. Failures wrap
// ErrFailedToSendEmail and release the key so the caller may retry.
func (m *CodeMailer) SendCode(ctx context.Context, msg CodeMessage) error {
	if msg.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidParams)
	}

	key := dedupKey(msg)
	if key != "" && !m.sent.Add(key, struct{}{}, m.window) {
		m.logger.DebugContext(ctx, "duplicate code delivery dropped",
			logger.RequestID(msg.RequestID),
			logger.Purpose(msg.Purpose),
		)
		return nil
	}

	err := m.send(ctx, msg)
	if err != nil {
		if key != "" {
			m.sent.Remove(key)
		}
		m.logger.WarnContext(ctx, "code delivery failed",
			logger.Email(msg.To),
			logger.Purpose(msg.Purpose),
			logger.Error(err),
		)
		if !errors.Is(err, ErrFailedToSendEmail) {
			err = errors.Join(ErrFailedToSendEmail, err)
		}
		return err
	}

	m.logger.InfoContext(ctx, "code delivered",
		logger.Email(msg.To),
		logger.Purpose(msg.Purpose),
		logger.RequestID(msg.RequestID),
	)
	return nil
}

func (m *CodeMailer) send(ctx context.Context, msg CodeMessage) error {
	subject := msg.Subject
	if subject == "" {
		subject = subjectFor(m.productName, msg.Purpose)
	}

	body, err := templates.Render(ctx, templates.OneTimeCode(templates.CodeEmail{
		ProductName: m.productName,
		Heading:     subject,
		Code:        msg.Code,
		ExpiresIn:   msg.ExpiresAt.Sub(m.now()),
	}))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.sender.SendEmail(ctx, SendEmailParams{
			SendTo:   msg.To,
			Subject:  subject,
			BodyHTML: body,
			Tag:      "otp-" + msg.Purpose,
		})
	}()

	// Senders that ignore ctx still cannot hold the caller past the timeout
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dedupKey binds the request id to a digest of the code so the plaintext code
// is never held in the dedup cache.
func dedupKey(msg CodeMessage) string {
	if msg.RequestID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(msg.Code))
	return msg.RequestID + ":" + hex.EncodeToString(sum[:])
}

func subjectFor(product, purpose string) string {
	switch purpose {
	case "setup":
		return product + " verification code"
	default:
		return product + " sign-in code"
	}
}
