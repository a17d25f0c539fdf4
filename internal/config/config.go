package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/httpserver"
	"github.com/aitoolhub/accountsec/pkg/pg"
	"github.com/aitoolhub/accountsec/pkg/redis"
	"github.com/aitoolhub/accountsec/pkg/secrets"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

// Challenge store backends.
const (
	ChallengeBackendRedis  = "redis"
	ChallengeBackendMemory = "memory"
)

const minSessionSecret = 32

// App holds process-wide settings.
type App struct {
	Environment string `env:"APP_ENV" envDefault:"development"` // development, staging or production
	ServiceName string `env:"APP_NAME" envDefault:"accountsec"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Keys holds the secrets the service cannot start without.
type Keys struct {
	MasterKey     string        `env:"ACCOUNTSEC_MASTER_KEY,required,unset"`     // base64, 32 bytes
	SessionSecret string        `env:"ACCOUNTSEC_SESSION_SECRET,required,unset"` // HMAC key for session tokens
	SessionTTL    time.Duration `env:"ACCOUNTSEC_SESSION_TTL" envDefault:"12h"`
}

// Keyring derives the encryption and hashing keys from the master key.
func (k Keys) Keyring() (*secrets.Keyring, error) {
	master, err := secrets.ParseKey(k.MasterKey)
	if err != nil {
		return nil, err
	}
	return secrets.NewKeyring(master)
}

func (k Keys) validate() error {
	if _, err := secrets.ParseKey(k.MasterKey); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if len(k.SessionSecret) < minSessionSecret {
		return fmt.Errorf("%w: ACCOUNTSEC_SESSION_SECRET must be at least %d bytes", ErrInvalidConfig, minSessionSecret)
	}
	if k.SessionTTL <= 0 {
		return fmt.Errorf("%w: ACCOUNTSEC_SESSION_TTL must be positive", ErrInvalidConfig)
	}
	return nil
}

// Server is everything `accountsec serve` needs.
type Server struct {
	App
	Keys

	ChallengeBackend string        `env:"ACCOUNTSEC_CHALLENGE_STORE" envDefault:"redis"`            // redis or memory
	VerifyRateLimit  int           `env:"ACCOUNTSEC_VERIFY_RATE_LIMIT" envDefault:"20"`             // submissions per challenge per minute, 0 disables
	UserHeader       string        `env:"ACCOUNTSEC_USER_HEADER" envDefault:"X-Authenticated-User"` // set by the gateway after the password step
	SweepInterval    time.Duration `env:"ACCOUNTSEC_SWEEP_INTERVAL" envDefault:"1h"`                // background expiry sweep, 0 disables

	TwoFactor twofactor.Config
	Postgres  pg.Config
	Redis     redis.Config
	Email     email.Config
	HTTP      httpserver.Config
}

// UsesRedis reports whether any component is backed by Redis.
func (s Server) UsesRedis() bool {
	return s.ChallengeBackend == ChallengeBackendRedis
}

// LoadServer parses and validates the serve configuration.
func LoadServer() (Server, error) {
	cfg, err := parse[Server]()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (s Server) validate() error {
	if err := s.Keys.validate(); err != nil {
		return err
	}
	if err := s.TwoFactor.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	switch s.ChallengeBackend {
	case ChallengeBackendRedis, ChallengeBackendMemory:
	default:
		return fmt.Errorf("%w: ACCOUNTSEC_CHALLENGE_STORE must be %q or %q", ErrInvalidConfig, ChallengeBackendRedis, ChallengeBackendMemory)
	}
	if s.UserHeader == "" {
		return fmt.Errorf("%w: ACCOUNTSEC_USER_HEADER must not be empty", ErrInvalidConfig)
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("%w: ACCOUNTSEC_SWEEP_INTERVAL must not be negative", ErrInvalidConfig)
	}
	if s.VerifyRateLimit < 0 {
		return fmt.Errorf("%w: ACCOUNTSEC_VERIFY_RATE_LIMIT must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Maintenance is what the migrate and sweep commands need.
type Maintenance struct {
	App

	TwoFactor twofactor.Config
	Postgres  pg.Config
}

// LoadMaintenance parses the database-only configuration.
func LoadMaintenance() (Maintenance, error) {
	cfg, err := parse[Maintenance]()
	if err != nil {
		return cfg, err
	}
	if err := cfg.TwoFactor.Validate(); err != nil {
		return cfg, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}
