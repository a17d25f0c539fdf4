package twofactor

import (
	"io"
	"log/slog"
	"time"

	"github.com/aitoolhub/accountsec/pkg/ratelimiter"
	"github.com/aitoolhub/accountsec/pkg/totp"
)

type options struct {
	cfg     Config
	clock   Clock
	logger  *slog.Logger
	limiter ratelimiter.Store
	qrSize  int
}

// Option configures EnrollmentManager and ChallengeManager.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLimiterStore sets where failure budgets are tracked. Use a shared
// store such as ratelimiter.RedisStore when running several instances.
func WithLimiterStore(s ratelimiter.Store) Option {
	return func(o *options) {
		if s != nil {
			o.limiter = s
		}
	}
}

// WithQRCodeSize sets the edge length of the provisioning QR image.
func WithQRCodeSize(px int) Option {
	return func(o *options) {
		if px > 0 {
			o.qrSize = px
		}
	}
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		cfg:    DefaultConfig(),
		clock:  systemClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		qrSize: totp.DefaultQRCodeSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.limiter == nil {
		o.limiter = ratelimiter.NewMemoryStore(
			ratelimiter.WithCleanupInterval(0),
			ratelimiter.WithClock(o.clock.Now),
		)
	}
	return o, nil
}

// failureBudget allows limit failures per window, restored in full once the window passes.
func failureBudget(store ratelimiter.Store, limit int, window time.Duration) (*ratelimiter.Bucket, error) {
	return ratelimiter.NewBucket(store, ratelimiter.PerWindow(limit, window))
}
