package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/secrets"
)

func TestKeygen(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, args ...string) string {
		t.Helper()
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return strings.TrimSpace(out.String())
	}

	t.Run("master key", func(t *testing.T) {
		t.Parallel()
		key, err := secrets.ParseKey(run(t, "keygen"))
		require.NoError(t, err)
		assert.Len(t, key, secrets.KeySize)
	})

	t.Run("session secret", func(t *testing.T) {
		t.Parallel()
		assert.GreaterOrEqual(t, len(run(t, "keygen", "--session")), 32)
	})
}

func TestMigrate_RejectsUnknownAction(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "sideways"})
	assert.Error(t, cmd.Execute())
}

func TestHeaderUser(t *testing.T) {
	t.Parallel()

	resolve := headerUser("X-Authenticated-User")

	req := httptest.NewRequest("POST", "/v1/2fa/challenges", nil)
	_, err := resolve(req)
	assert.ErrorIs(t, err, errNoUser)

	req.Header.Set("X-Authenticated-User", "user-1")
	id, err := resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}
