package twofactor_test

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

func TestDefaultConfigMatchesEnvDefaults(t *testing.T) {
	var cfg twofactor.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, twofactor.DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TWOFACTOR_RESEND_COOLDOWN", "30s")
	t.Setenv("TWOFACTOR_RECOVERY_CODE_COUNT", "8")

	var cfg twofactor.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, 30*time.Second, cfg.ResendCooldown)
	assert.Equal(t, 8, cfg.RecoveryCodeCount)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*twofactor.Config)
	}{
		{"empty issuer", func(c *twofactor.Config) { c.Issuer = "" }},
		{"zero ttl", func(c *twofactor.Config) { c.EmailCodeTTL = 0 }},
		{"cooldown beyond ttl", func(c *twofactor.Config) { c.ResendCooldown = c.EmailCodeTTL }},
		{"no attempts", func(c *twofactor.Config) { c.MaxChallengeAttempts = 0 }},
		{"no recovery codes", func(c *twofactor.Config) { c.RecoveryCodeCount = 0 }},
		{"wide skew", func(c *twofactor.Config) { c.TotpSkew = 3 }},
		{"negative skew", func(c *twofactor.Config) { c.TotpSkew = -1 }},
		{"no challenge ttl", func(c *twofactor.Config) { c.ChallengeTTL = 0 }},
		{"no enrollment window", func(c *twofactor.Config) { c.EnrollmentFailureWindow = 0 }},
		{"no login budget", func(c *twofactor.Config) { c.LoginFailureBudget = 0 }},
		{"no pending ttl", func(c *twofactor.Config) { c.PendingSecretTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := twofactor.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), twofactor.ErrInvalidConfig)
		})
	}
}
