package templates_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/pkg/email/templates"
)

func TestOneTimeCode(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(context.Background(), templates.OneTimeCode(templates.CodeEmail{
		ProductName: "Acme <Corp>",
		Heading:     "Sign-in code",
		Code:        "012345",
		ExpiresIn:   9*time.Minute + 50*time.Second,
	}))
	require.NoError(t, err)
	assert.Contains(t, html, "012345")
	assert.Contains(t, html, "Acme &lt;Corp&gt;")
	assert.NotContains(t, html, "<Corp>")
	assert.Contains(t, html, "10 minute(s)")
}
